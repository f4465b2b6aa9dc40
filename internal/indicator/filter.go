// Package indicator converts windows of OHLC candles into trading-permission
// signals. Filters are independent and composable: the registry ANDs every
// enabled filter's verdict, so one BLOCK is enough to gate order creation.
package indicator

import (
	"fmt"

	"trend-grid-bot-go/internal/metrics"
	"trend-grid-bot-go/internal/models"
	"trend-grid-bot-go/internal/safemath"
)

// Filter is the capability set every trend filter implements. Update recomputes
// state from a fresh candle window; Signal is a pure read of the last state and
// never recomputes.
type Filter interface {
	Name() string
	Enabled() bool
	Update(klines []models.Kline) error
	Signal() models.FilterState
}

// validateCloses rejects candle windows the smoothing math must never see.
// The caller keeps its previous state when an error is returned.
func validateCloses(name string, klines []models.Kline, minLen int) error {
	if len(klines) < minLen {
		return fmt.Errorf("%s: need at least %d klines, got %d", name, minLen, len(klines))
	}
	for i, k := range klines {
		if !safemath.Sane(k.Close) || k.Close <= 0 {
			return fmt.Errorf("%s: kline %d has degenerate close %v", name, i, k.Close)
		}
	}
	return nil
}

// Registry holds the configured filters and combines their permissions.
type Registry struct {
	filters []Filter
}

// NewRegistry builds a registry over the given filters; disabled filters may
// be registered, they simply never vote.
func NewRegistry(filters ...Filter) *Registry {
	return &Registry{filters: filters}
}

// UpdateAll feeds the candle window to every enabled filter. A filter that
// rejects the window keeps its previous state; the error is reported per
// filter and does not stop the others.
func (r *Registry) UpdateAll(klines []models.Kline) {
	for _, f := range r.filters {
		if !f.Enabled() {
			continue
		}
		if err := f.Update(klines); err != nil {
			// Rejection, not a crash: the filter's prior verdict stands.
			continue
		}
		st := f.Signal()
		metrics.FilterSignals.WithLabelValues(st.Name, string(st.Signal)).Inc()
	}
}

// Allowed ANDs every enabled filter's permission. With no enabled filters the
// registry allows trading.
func (r *Registry) Allowed() bool {
	for _, f := range r.filters {
		if !f.Enabled() {
			continue
		}
		if f.Signal().Signal != models.SignalAllow {
			return false
		}
	}
	return true
}

// States returns a copy of every registered filter's last state, enabled or
// not, for the operator snapshot.
func (r *Registry) States() []models.FilterState {
	out := make([]models.FilterState, 0, len(r.filters))
	for _, f := range r.filters {
		out = append(out, f.Signal())
	}
	return out
}

// ema computes the standard exponential moving average series over values,
// seeded with an SMA of the first period values.
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return nil
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)
	k := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}
