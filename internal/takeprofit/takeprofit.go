// Package takeprofit derives the live take-profit percentage from the
// configured base value and the current funding rate. When longs pay funding
// the target widens; when shorts pay it tightens. The [MinTP, MaxTP] clamp is
// a hard invariant, not a best-effort bound.
package takeprofit

import (
	"sync"
	"time"

	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/models"
	"trend-grid-bot-go/internal/safemath"
)

// FundingSource provides the current funding rate for the engine's symbol.
// The live implementation is the exchange gateway.
type FundingSource interface {
	GetFundingRate() (float64, error)
}

// Calculator caches the adjusted take-profit between refreshes. Recomputation
// happens at most once per CheckInterval.
type Calculator struct {
	cfg     models.DynamicTPConfig
	funding FundingSource
	now     func() time.Time

	mu        sync.Mutex
	cached    float64
	refreshed time.Time
}

// NewCalculator builds a calculator over the funding source. The cache starts
// cold; the first Current() call computes.
func NewCalculator(cfg models.DynamicTPConfig, funding FundingSource) *Calculator {
	return &Calculator{
		cfg:     cfg,
		funding: funding,
		now:     time.Now,
	}
}

// Current returns the take-profit percentage to stamp on the next order.
// Disabled calculators always return BaseTP. A funding fetch failure keeps the
// cached value (or BaseTP when cold) rather than blocking order flow.
func (c *Calculator) Current() float64 {
	if !c.cfg.Enabled {
		return c.cfg.BaseTP
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	interval := time.Duration(c.cfg.CheckIntervalSec) * time.Second
	if !c.refreshed.IsZero() && c.now().Sub(c.refreshed) < interval {
		return c.cached
	}

	rate, err := c.funding.GetFundingRate()
	if err != nil {
		logger.S().Warnw("funding rate fetch failed, keeping cached TP", "err", err)
		if c.refreshed.IsZero() {
			return c.cfg.BaseTP
		}
		return c.cached
	}

	c.cached = Adjusted(rate, c.cfg)
	c.refreshed = c.now()
	return c.cached
}

// Adjusted computes the funding-adjusted take-profit for one rate. Split out
// of Current so it stays a pure function of its inputs.
func Adjusted(fundingRate float64, cfg models.DynamicTPConfig) float64 {
	if !safemath.Sane(fundingRate) {
		v, _ := safemath.Clamp(cfg.BaseTP, cfg.MinTP, cfg.MaxTP)
		return v
	}

	var adjusted float64
	if fundingRate > 0 {
		// Longs pay: widen the target so fills out-earn the funding drag.
		adjusted = cfg.BaseTP + fundingRate*100 + cfg.SafetyMargin
		if adjusted > cfg.MaxTP {
			adjusted = cfg.MaxTP
		}
	} else {
		adjusted = cfg.BaseTP + fundingRate*100 - cfg.SafetyMargin
		if adjusted < cfg.MinTP {
			adjusted = cfg.MinTP
		}
	}

	clamped, _ := safemath.Clamp(adjusted, cfg.MinTP, cfg.MaxTP)
	return clamped
}
