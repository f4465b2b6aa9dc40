// Package reporter renders a periodic operator view of the engine: phase,
// filter verdicts, open orders and the position, as a plain-text table.
package reporter

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"trend-grid-bot-go/internal/models"
)

// StatusSource yields the current read-only engine view.
type StatusSource func() models.StatusSnapshot

// Reporter prints the status table on a fixed interval until stopped.
type Reporter struct {
	source   StatusSource
	interval time.Duration
	out      io.Writer
	stop     chan struct{}
	done     chan struct{}
}

// New builds a reporter writing to stdout.
func New(source StatusSource, interval time.Duration) *Reporter {
	return &Reporter{
		source:   source,
		interval: interval,
		out:      os.Stdout,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins periodic reporting in the background.
func (r *Reporter) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Fprint(r.out, Render(r.source()))
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts reporting and waits for the loop to exit.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}

// Render formats one snapshot. Terminal FAILED/CANCELLED orders are listed
// after live ones so the top of the table is always the working set.
func Render(s models.StatusSnapshot) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("grid engine %s since %s (%s)",
		s.Phase, s.PhaseSince.Format("15:04:05"), s.PhaseReason)

	t.AppendHeader(table.Row{"ORDER", "EXCH ID", "SIDE", "PRICE", "QTY", "TP", "STATUS"})
	var live, terminal []models.Order
	for _, o := range s.Ledger.Orders {
		if o.Status.Terminal() {
			terminal = append(terminal, o)
		} else {
			live = append(live, o)
		}
	}
	for _, o := range append(live, terminal...) {
		id := "-"
		if o.ExchangeOrderID != 0 {
			id = fmt.Sprintf("%d", o.ExchangeOrderID)
		}
		t.AppendRow(table.Row{
			shorten(o.CorrelationID), id, o.Side,
			fmt.Sprintf("%.4f", o.Price),
			fmt.Sprintf("%.6f", o.Quantity),
			fmt.Sprintf("%.4f", o.TakeProfitPrice),
			o.Status,
		})
	}

	t.AppendSeparator()
	if pos := s.Ledger.Position; pos != nil {
		t.AppendFooter(table.Row{"POSITION", "", pos.Side,
			fmt.Sprintf("%.4f", pos.EntryPrice),
			fmt.Sprintf("%.6f", pos.Quantity), "",
			fmt.Sprintf("PnL %.4f", s.Ledger.UnrealizedPnL)})
	} else {
		t.AppendFooter(table.Row{"POSITION", "", "flat", "", "", "", ""})
	}

	out := t.Render() + "\n"
	for _, f := range s.Filters {
		switch f.Name {
		case "macd":
			out += fmt.Sprintf("filter %-6s %-5s macd=%.6f signal=%.6f hist=%.6f\n",
				f.Name, f.Signal, f.MACD, f.MACDSig, f.Histogram)
		case "ema":
			out += fmt.Sprintf("filter %-6s %-5s ema=%.4f direction=%s\n",
				f.Name, f.Signal, f.EMA, f.Direction)
		default:
			out += fmt.Sprintf("filter %-6s %s\n", f.Name, f.Signal)
		}
	}
	out += fmt.Sprintf("mark price %.4f\n", s.Ledger.MarkPrice)
	return out
}

func shorten(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}
