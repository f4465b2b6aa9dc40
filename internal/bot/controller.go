// Package bot runs the grid strategy: a phase machine around an order ledger.
// All phase transitions happen here and nowhere else; every other package
// either feeds this loop (streams, filters) or obeys it (gateway, ledger).
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trend-grid-bot-go/internal/exchange"
	"trend-grid-bot-go/internal/indicator"
	"trend-grid-bot-go/internal/ledger"
	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/metrics"
	"trend-grid-bot-go/internal/models"
	"trend-grid-bot-go/internal/persistence"
	"trend-grid-bot-go/internal/takeprofit"
)

// maxKlineWindow bounds the rolling candle window fed to the filters.
const maxKlineWindow = 500

// Controller owns the phase machine and drives grid maintenance.
type Controller struct {
	cfg     *models.Config
	gateway exchange.Gateway
	ledger  *ledger.Ledger
	filters *indicator.Registry
	tp      *takeprofit.Calculator
	repo    persistence.StateRepository

	mu          sync.RWMutex
	phase       models.BotPhase
	phaseSince  time.Time
	phaseReason string
	anchorPrice float64

	// tickMu serializes tick with Stop so the cancel sweep always sees every
	// order an in-flight tick created.
	tickMu sync.Mutex

	klines    []models.Kline
	now       func() time.Time
	persistCh chan struct{}
}

// NewController wires the strategy. repo may be nil (no persistence).
func NewController(cfg *models.Config, gw exchange.Gateway, led *ledger.Ledger,
	filters *indicator.Registry, tp *takeprofit.Calculator, repo persistence.StateRepository) *Controller {
	c := &Controller{
		cfg:        cfg,
		gateway:    gw,
		ledger:     led,
		filters:    filters,
		tp:         tp,
		repo:       repo,
		phase:      models.PhaseInactive,
		phaseSince: time.Now(),
		now:        time.Now,
		persistCh:  make(chan struct{}, 1),
	}
	metrics.SetPhase(string(c.phase))
	return c
}

// SeedKlines primes the filter window with backfilled history.
func (c *Controller) SeedKlines(klines []models.Kline) {
	c.klines = append(c.klines, klines...)
	if len(c.klines) > maxKlineWindow {
		c.klines = c.klines[len(c.klines)-maxKlineWindow:]
	}
	c.filters.UpdateAll(c.klines)
}

// RestoreState reloads the persisted phase and ledger so a restart carries on
// with the orders it already owns instead of discovering them as strangers.
func (c *Controller) RestoreState() error {
	if c.repo == nil {
		return nil
	}
	state, err := c.repo.LoadState()
	if err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	}
	if state == nil {
		return nil
	}

	c.ledger.Restore(state.Ledger)
	c.mu.Lock()
	if IsRunning(state.Phase) {
		c.phase = state.Phase
		c.phaseReason = "restored: " + state.PhaseReason
		c.phaseSince = c.now()
		c.anchorPrice = state.AnchorPrice
	}
	c.mu.Unlock()
	metrics.SetPhase(string(c.Phase()))
	logger.S().Infow("state restored",
		"phase", state.Phase, "anchor", state.AnchorPrice, "orders", len(state.Ledger.Orders))
	return nil
}

// Phase returns the current phase.
func (c *Controller) Phase() models.BotPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// transition moves the phase machine along one legal edge. Illegal edges are
// rejected and logged as invariant violations, never coerced.
func (c *Controller) transition(to models.BotPhase, reason string) error {
	c.mu.Lock()
	from := c.phase
	if !CanTransition(from, to) {
		c.mu.Unlock()
		logger.S().Errorw("invariant violation: illegal phase transition rejected",
			"from", from, "to", to, "reason", reason)
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	c.phase = to
	c.phaseSince = c.now()
	c.phaseReason = reason
	c.mu.Unlock()

	metrics.SetPhase(string(to))
	logger.S().Infow("phase transition", "from", from, "to", to, "reason", reason)
	c.schedulePersist()
	return nil
}

// Start moves INACTIVE -> WAIT.
func (c *Controller) Start() (models.BotPhase, error) {
	err := c.transition(models.PhaseWait, "start command")
	return c.Phase(), err
}

// Pause moves ACTIVE -> PAUSE. Orders and positions are left standing.
func (c *Controller) Pause() (models.BotPhase, error) {
	err := c.transition(models.PhasePause, "pause command")
	return c.Phase(), err
}

// Resume moves PAUSE -> ACTIVE.
func (c *Controller) Resume() (models.BotPhase, error) {
	err := c.transition(models.PhaseActive, "resume command")
	return c.Phase(), err
}

// Stop cancels resting grid orders and moves to INACTIVE. Filled positions
// and the take-profits protecting them are left intact. It waits for any
// in-flight tick first; once INACTIVE, later ticks are no-ops.
func (c *Controller) Stop() (models.BotPhase, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	from := c.Phase()
	if !CanTransition(from, models.PhaseInactive) {
		logger.S().Errorw("invariant violation: illegal phase transition rejected",
			"from", from, "to", models.PhaseInactive, "reason", "stop command")
		return from, fmt.Errorf("illegal transition %s -> %s", from, models.PhaseInactive)
	}

	for _, o := range c.ledger.Snapshot().Orders {
		if o.Status != models.OrderPending || o.ExchangeOrderID == 0 {
			continue
		}
		if err := c.gateway.CancelOrder(o.ExchangeOrderID); err != nil {
			// The stream will tell us the truth either way; a cancel failure
			// must not leave the stop half-done.
			logger.S().Warnw("cancel on stop failed",
				"exchange_order_id", o.ExchangeOrderID, "err", err)
		}
	}

	err := c.transition(models.PhaseInactive, "stop command")
	return c.Phase(), err
}

// StatusSnapshot returns the read-only operator view.
func (c *Controller) StatusSnapshot() models.StatusSnapshot {
	c.mu.RLock()
	phase, since, reason := c.phase, c.phaseSince, c.phaseReason
	c.mu.RUnlock()
	return models.StatusSnapshot{
		Phase:       phase,
		PhaseSince:  since,
		PhaseReason: reason,
		Filters:     c.filters.States(),
		Ledger:      c.ledger.Snapshot(),
	}
}

// Run consumes the realtime streams and drives the tick loop until the
// context ends. An in-flight tick always finishes; cancellation is only
// observed between events.
func (c *Controller) Run(ctx context.Context, market, account <-chan models.StreamEvent) {
	interval := time.Duration(c.cfg.TickIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	persistDone := make(chan struct{})
	go c.persistLoop(persistDone)
	defer close(persistDone)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-market:
			if !ok {
				market = nil
				continue
			}
			c.handleMarketEvent(ev)
		case ev, ok := <-account:
			if !ok {
				account = nil
				continue
			}
			c.ledger.ApplyStreamEvent(ev)
			c.schedulePersist()
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) handleMarketEvent(ev models.StreamEvent) {
	switch ev.Type {
	case models.TradeTickEvent:
		c.ledger.SetMarkPrice(ev.Tick.Price)
	case models.KlineEvent:
		c.klines = append(c.klines, *ev.Kline)
		if len(c.klines) > maxKlineWindow {
			c.klines = c.klines[1:]
		}
		c.filters.UpdateAll(c.klines)
	case models.StreamErrorEvent:
		logger.S().Warnw("exchange stream error",
			"code", ev.Err.Code, "msg", ev.Err.Message)
	}
}

// tick advances the phase machine and maintains the grid. It trusts only the
// ledger snapshot taken inside this call, never state remembered across
// stream events.
func (c *Controller) tick() {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	switch c.Phase() {
	case models.PhaseWait:
		if !c.filters.Allowed() {
			return
		}
		anchor := c.ledger.MarkPrice()
		if anchor <= 0 {
			price, err := c.gateway.GetPrice()
			if err != nil {
				logger.S().Warnw("no anchor price yet, staying in WAIT", "err", err)
				return
			}
			anchor = price
		}
		c.mu.Lock()
		c.anchorPrice = anchor
		c.mu.Unlock()
		if err := c.transition(models.PhaseActivate, "activation filter allow"); err != nil {
			return
		}
		c.maintainGrid()
		c.promoteIfConfirmed()

	case models.PhaseActivate:
		c.maintainGrid()
		c.promoteIfConfirmed()

	case models.PhaseActive:
		// A BLOCK verdict always pauses; the reactivation mode only decides
		// how the PAUSE branch gets back out.
		if !c.filters.Allowed() {
			c.transition(models.PhasePause, "trend filter block")
			return
		}
		c.maintainGrid()

	case models.PhasePause:
		if c.filters.Allowed() && c.cfg.Grid.ReactivationMode == models.ReactivateImmediate {
			c.transition(models.PhaseActive, "trend filter allow")
		}
	}
}

// promoteIfConfirmed moves ACTIVATE -> ACTIVE once at least one order has an
// exchange id, i.e. the first batch really exists remotely. The order's
// current status does not matter; a fill arriving before this runs is still
// proof of a confirmed order.
func (c *Controller) promoteIfConfirmed() {
	for _, o := range c.ledger.Snapshot().Orders {
		if o.Confirmed() {
			c.transition(models.PhaseActive, "first order confirmed")
			return
		}
	}
}

// maintainGrid emits intents for every desired level that has no PENDING or
// FILLED order, up to MaxTotalOrders. Re-running it against an unchanged
// ledger emits nothing.
func (c *Controller) maintainGrid() {
	c.mu.RLock()
	anchor := c.anchorPrice
	c.mu.RUnlock()

	levels, err := desiredLevels(c.cfg.Grid, anchor)
	if err != nil {
		logger.S().Errorw("grid derivation failed", "err", err)
		return
	}

	snap := c.ledger.Snapshot()
	occupied := occupiedKeys(snap.Orders, c.cfg.Grid)
	budget := c.cfg.Grid.MaxTotalOrders - liveOrderCount(snap.Orders)

	for _, lvl := range levels {
		if budget <= 0 {
			return
		}
		if occupied[lvl.Key()] {
			continue
		}
		if c.emitOrder(lvl) {
			budget--
		}
	}
}

// emitOrder runs the two-path creation contract for one level: record the
// intent, call the gateway, then either confirm with the exchange id or mark
// the intent failed. There is no third outcome.
func (c *Controller) emitOrder(lvl gridLevel) bool {
	price, _ := lvl.Price.Float64()
	tpPct := c.tp.Current()
	tpPrice := c.takeProfitPrice(lvl, tpPct)
	qty := c.orderQuantity()
	if qty <= 0 {
		logger.S().Errorw("grid quantity rounds to zero lots, nothing to place",
			"quantity", c.cfg.Grid.GridQuantity, "step", c.cfg.Grid.StepSize)
		return false
	}

	corrID := c.ledger.RecordIntent(ledger.Intent{
		Symbol:          c.cfg.Symbol,
		Side:            lvl.Side,
		Price:           price,
		Quantity:        qty,
		TakeProfitPrice: tpPrice,
	})

	order, err := c.gateway.CreateOrder(lvl.Side, price, qty, tpPrice, corrID)
	if err != nil {
		if failErr := c.ledger.MarkFailed(corrID, err.Error()); failErr != nil {
			logger.S().Errorw("mark failed rejected", "correlation_id", corrID, "err", failErr)
		}
		c.schedulePersist()
		return false
	}

	if err := c.ledger.ConfirmCreated(corrID, order.ExchangeOrderID); err != nil {
		logger.S().Errorw("confirm rejected for acked order",
			"correlation_id", corrID, "exchange_order_id", order.ExchangeOrderID, "err", err)
		return false
	}
	c.schedulePersist()
	return true
}

// orderQuantity floors the configured quantity onto the lot-size grid.
func (c *Controller) orderQuantity() float64 {
	step, err := decimalFromTick(c.cfg.Grid.StepSize)
	if err != nil {
		return c.cfg.Grid.GridQuantity
	}
	qty, _ := alignQuantity(c.cfg.Grid.GridQuantity, step).Float64()
	return qty
}

// takeProfitPrice converts the percentage target into an aligned price on the
// profitable side of the entry.
func (c *Controller) takeProfitPrice(lvl gridLevel, tpPct float64) float64 {
	price, _ := lvl.Price.Float64()
	var raw float64
	var tpSide models.Side
	if lvl.Side == models.Buy {
		raw = price * (1 + tpPct/100)
		tpSide = models.Sell
	} else {
		raw = price * (1 - tpPct/100)
		tpSide = models.Buy
	}
	tick, err := decimalFromTick(c.cfg.Grid.TickSize)
	if err != nil {
		return raw
	}
	aligned, _ := alignPrice(raw, tick, tpSide).Float64()
	return aligned
}

// schedulePersist marks the state dirty; the persist loop coalesces bursts.
func (c *Controller) schedulePersist() {
	if c.repo == nil {
		return
	}
	select {
	case c.persistCh <- struct{}{}:
	default:
	}
}

// persistLoop writes state in the background so ledger mutations never wait
// on disk.
func (c *Controller) persistLoop(done <-chan struct{}) {
	for {
		select {
		case <-done:
			// Final write so a clean shutdown loses nothing.
			c.saveState()
			return
		case <-c.persistCh:
			c.saveState()
		}
	}
}

func (c *Controller) saveState() {
	if c.repo == nil {
		return
	}
	c.mu.RLock()
	state := &models.PersistedState{
		Phase:          c.phase,
		PhaseReason:    c.phaseReason,
		AnchorPrice:    c.anchorPrice,
		LastUpdateTime: c.now(),
	}
	c.mu.RUnlock()
	state.Ledger = c.ledger.Snapshot()

	if err := c.repo.SaveState(state); err != nil {
		logger.S().Errorw("state persistence failed", "err", err)
	}
}
