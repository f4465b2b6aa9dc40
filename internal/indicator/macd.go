package indicator

import (
	"fmt"
	"sync"
	"time"

	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/models"
	"trend-grid-bot-go/internal/safemath"
)

// MACDFilter gates trading on a bullish MACD configuration. The bullish
// predicate is configurable because the strategy historically used both
// readings: lines above zero, or a rising histogram.
type MACDFilter struct {
	cfg   models.MACDConfig
	mu    sync.RWMutex
	state models.FilterState

	prevHistogram float64
	hasPrev       bool
}

// NewMACDFilter builds the filter with a BLOCK initial verdict; it only
// allows trading after a full window has been evaluated.
func NewMACDFilter(cfg models.MACDConfig) *MACDFilter {
	return &MACDFilter{
		cfg: cfg,
		state: models.FilterState{
			Name:    "macd",
			Enabled: cfg.Enabled,
			Signal:  models.SignalBlock,
		},
	}
}

func (f *MACDFilter) Name() string  { return "macd" }
func (f *MACDFilter) Enabled() bool { return f.cfg.Enabled }

// minWindow is the smallest candle count that yields a defined signal line.
func (f *MACDFilter) minWindow() int {
	return f.cfg.SlowPeriod + f.cfg.SignalPeriod
}

// Update recomputes MACD/signal/histogram over the window and atomically
// replaces the filter state. A rejected window leaves the previous state
// untouched and returns the reason.
func (f *MACDFilter) Update(klines []models.Kline) error {
	if err := validateCloses("macd", klines, f.minWindow()); err != nil {
		logger.S().Warnw("MACD update rejected, keeping previous state", "err", err)
		return err
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}

	fast := ema(closes, f.cfg.FastPeriod)
	slow := ema(closes, f.cfg.SlowPeriod)
	if fast == nil || slow == nil {
		return fmt.Errorf("macd: window too short for periods %d/%d", f.cfg.FastPeriod, f.cfg.SlowPeriod)
	}

	// The MACD line is only defined where the slow EMA is.
	macdSeries := make([]float64, 0, len(closes)-f.cfg.SlowPeriod+1)
	for i := f.cfg.SlowPeriod - 1; i < len(closes); i++ {
		macdSeries = append(macdSeries, fast[i]-slow[i])
	}
	signalSeries := ema(macdSeries, f.cfg.SignalPeriod)
	if signalSeries == nil {
		return fmt.Errorf("macd: window too short for signal period %d", f.cfg.SignalPeriod)
	}

	macdLine := macdSeries[len(macdSeries)-1]
	signalLine := signalSeries[len(signalSeries)-1]
	histogram := macdLine - signalLine

	f.mu.Lock()
	defer f.mu.Unlock()

	bullish := false
	switch f.cfg.BullishRule {
	case models.MACDHistogramRising:
		bullish = f.hasPrev && histogram > f.prevHistogram
	default: // lines_above_zero
		bullish = macdLine > 0 && signalLine > 0
	}
	f.prevHistogram = histogram
	f.hasPrev = true

	verdict := models.SignalBlock
	if bullish {
		verdict = models.SignalAllow
	}

	// Values cross safemath before anyone downstream reads them.
	macdOut, sigOut, histOut := macdLine, signalLine, histogram
	if !safemath.Sane(macdOut) {
		macdOut = 0
	}
	if !safemath.Sane(sigOut) {
		sigOut = 0
	}
	if !safemath.Sane(histOut) {
		histOut = 0
	}

	f.state = models.FilterState{
		Name:      "macd",
		Enabled:   f.cfg.Enabled,
		Signal:    verdict,
		MACD:      macdOut,
		MACDSig:   sigOut,
		Histogram: histOut,
		KlineTime: klines[len(klines)-1].CloseTime,
		UpdatedAt: time.Now(),
	}
	return nil
}

// Signal returns the last computed state without recomputing.
func (f *MACDFilter) Signal() models.FilterState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}
