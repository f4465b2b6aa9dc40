package indicator

import (
	"sync"
	"time"

	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/models"
	"trend-grid-bot-go/internal/safemath"
)

// EMAFilter classifies the EMA slope between consecutive updates and maps it
// to a permission via the allow_rising/allow_falling flags. It is independent
// of the MACD filter; the registry combines them.
type EMAFilter struct {
	cfg   models.EMAConfig
	mu    sync.RWMutex
	state models.FilterState

	prevEMA float64
	hasPrev bool
}

// NewEMAFilter builds the filter in the FLAT/BLOCK initial state.
func NewEMAFilter(cfg models.EMAConfig) *EMAFilter {
	return &EMAFilter{
		cfg: cfg,
		state: models.FilterState{
			Name:      "ema",
			Enabled:   cfg.Enabled,
			Signal:    models.SignalBlock,
			Direction: models.DirectionFlat,
		},
	}
}

func (f *EMAFilter) Name() string  { return "ema" }
func (f *EMAFilter) Enabled() bool { return f.cfg.Enabled }

// Update recomputes the EMA and its direction, atomically replacing state.
func (f *EMAFilter) Update(klines []models.Kline) error {
	if err := validateCloses("ema", klines, f.cfg.Period); err != nil {
		logger.S().Warnw("EMA update rejected, keeping previous state", "err", err)
		return err
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	series := ema(closes, f.cfg.Period)
	current := series[len(series)-1]

	f.mu.Lock()
	defer f.mu.Unlock()

	direction := models.DirectionFlat
	if f.hasPrev {
		switch {
		case current-f.prevEMA > f.cfg.Epsilon:
			direction = models.DirectionRising
		case f.prevEMA-current > f.cfg.Epsilon:
			direction = models.DirectionFalling
		}
	}
	f.prevEMA = current
	f.hasPrev = true

	verdict := models.SignalBlock
	if (direction == models.DirectionRising && f.cfg.AllowRising) ||
		(direction == models.DirectionFalling && f.cfg.AllowFalling) {
		verdict = models.SignalAllow
	}

	emaOut := current
	if !safemath.Sane(emaOut) {
		emaOut = 0
	}

	f.state = models.FilterState{
		Name:      "ema",
		Enabled:   f.cfg.Enabled,
		Signal:    verdict,
		Direction: direction,
		EMA:       emaOut,
		KlineTime: klines[len(klines)-1].CloseTime,
		UpdatedAt: time.Now(),
	}
	return nil
}

// Signal returns the last computed state without recomputing.
func (f *EMAFilter) Signal() models.FilterState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}
