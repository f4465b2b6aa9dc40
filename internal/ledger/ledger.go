// Package ledger is the single source of truth for orders and the position.
// It reconciles three inputs that race each other in the wild: locally issued
// intents, REST acknowledgments, and account-stream pushes. The contract that
// kills ghost orders: an order carries an exchange id if and only if
// ConfirmCreated ran for it; success is never inferred from the absence of a
// failure.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/metrics"
	"trend-grid-bot-go/internal/models"
	"trend-grid-bot-go/internal/safemath"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

// Intent describes one order the controller wants to exist.
type Intent struct {
	Symbol          string
	Side            models.Side
	Price           float64
	Quantity        float64
	TakeProfitPrice float64
}

// Ledger owns every Order and the Position. All mutation goes through its
// methods under one mutex; snapshot reads share no memory with the inside.
type Ledger struct {
	mu           sync.RWMutex
	orders       map[string]*models.Order // correlation id -> order
	byExchangeID map[int64]string         // exchange id -> correlation id
	position     *models.Position
	markPrice    float64
	now          func() time.Time
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		orders:       make(map[string]*models.Order),
		byExchangeID: make(map[int64]string),
		now:          time.Now,
	}
}

// newCorrelationID yields a compact client-order-id-safe token.
func newCorrelationID() string {
	u := uuid.New()
	return base62.EncodeToString(u[:])
}

// RecordIntent registers a PENDING record before any remote call is made and
// returns its correlation id, which doubles as the exchange client order id.
func (l *Ledger) RecordIntent(intent Intent) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	corrID := newCorrelationID()
	l.orders[corrID] = &models.Order{
		CorrelationID:   corrID,
		Symbol:          intent.Symbol,
		Side:            intent.Side,
		Price:           intent.Price,
		Quantity:        intent.Quantity,
		TakeProfitPrice: intent.TakeProfitPrice,
		Status:          models.OrderPending,
		CreatedAt:       l.now(),
	}
	return corrID
}

// ConfirmCreated records the exchange order id returned by a successful
// create call. This is the only place an exchange id enters the ledger.
func (l *Ledger) ConfirmCreated(corrID string, exchangeOrderID int64) error {
	if exchangeOrderID == 0 {
		return fmt.Errorf("ledger: refusing to confirm %s with zero exchange id", corrID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[corrID]
	if !ok {
		return fmt.Errorf("ledger: confirm for unknown correlation id %s", corrID)
	}
	if o.Status == models.OrderFailed {
		return fmt.Errorf("ledger: order %s already marked failed", corrID)
	}
	if o.ExchangeOrderID != 0 {
		if o.ExchangeOrderID == exchangeOrderID {
			return nil // duplicate ack, no-op
		}
		return fmt.Errorf("ledger: order %s already confirmed as %d, got %d",
			corrID, o.ExchangeOrderID, exchangeOrderID)
	}

	o.ExchangeOrderID = exchangeOrderID
	l.byExchangeID[exchangeOrderID] = corrID
	metrics.OrdersConfirmed.WithLabelValues(string(o.Side)).Inc()
	logger.S().Infow("order confirmed created",
		"correlation_id", corrID, "exchange_order_id", exchangeOrderID,
		"side", o.Side, "price", o.Price)
	return nil
}

// MarkFailed is the other leg of the two-path contract: the caller must
// invoke it whenever the remote call did not yield a genuine exchange id.
// Legal only from PENDING, before an exchange id exists.
func (l *Ledger) MarkFailed(corrID, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.orders[corrID]
	if !ok {
		return fmt.Errorf("ledger: fail for unknown correlation id %s", corrID)
	}
	if o.ExchangeOrderID != 0 {
		return fmt.Errorf("ledger: order %s has exchange id %d, cannot fail it",
			corrID, o.ExchangeOrderID)
	}
	if o.Status != models.OrderPending {
		return fmt.Errorf("ledger: order %s is %s, FAILED is only reachable from PENDING",
			corrID, o.Status)
	}

	o.Status = models.OrderFailed
	o.FailReason = reason
	o.ClosedAt = l.now()
	metrics.OrdersFailed.Inc()
	logger.S().Warnw("order intent failed",
		"correlation_id", corrID, "reason", reason, "side", o.Side, "price", o.Price)
	return nil
}

// ApplyStreamEvent folds an account-stream push into the ledger. Duplicate or
// out-of-order deliveries are idempotent no-ops; unknown references are logged
// and dropped rather than invented.
func (l *Ledger) ApplyStreamEvent(ev models.StreamEvent) {
	switch ev.Type {
	case models.OrderUpdateEvent:
		if ev.Order != nil {
			l.applyOrderUpdate(ev.Order)
		}
	case models.AccountUpdateEvent:
		if ev.Account != nil {
			l.applyAccountUpdate(ev.Account)
		}
	}
}

func (l *Ledger) applyOrderUpdate(u *models.OrderUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o := l.lookupLocked(u)
	if o == nil {
		logger.S().Debugw("order update for unknown order, dropped",
			"client_order_id", u.ClientOrderID, "exchange_order_id", u.ExchangeOrderID,
			"status", u.Status)
		return
	}

	target, ok := mapStatus(u)
	if !ok {
		return // NEW/PARTIALLY_FILLED etc. carry no transition for us
	}
	if o.Status == target {
		return // duplicate delivery
	}
	if !transitionLegal(o.Status, target) {
		logger.S().Debugw("ignoring out-of-order status transition",
			"correlation_id", o.CorrelationID, "from", o.Status, "to", target)
		return
	}

	o.Status = target
	switch target {
	case models.OrderFilled:
		o.FilledAt = l.now()
		metrics.OrdersFilled.WithLabelValues(string(o.Side)).Inc()
	case models.OrderTPHit, models.OrderCancelled:
		o.ClosedAt = l.now()
	}
	logger.S().Infow("order status from stream",
		"correlation_id", o.CorrelationID, "status", target, "price", u.Price)
}

// lookupLocked resolves a stream reference, preferring the client order id
// the engine stamped on the order.
func (l *Ledger) lookupLocked(u *models.OrderUpdate) *models.Order {
	if u.ClientOrderID != "" {
		if o, ok := l.orders[u.ClientOrderID]; ok {
			return o
		}
	}
	if u.ExchangeOrderID != 0 {
		if corrID, ok := l.byExchangeID[u.ExchangeOrderID]; ok {
			return l.orders[corrID]
		}
	}
	return nil
}

// mapStatus translates exchange vocabulary into ledger statuses.
func mapStatus(u *models.OrderUpdate) (models.OrderStatus, bool) {
	switch u.Status {
	case "FILLED":
		if u.IsTakeProfit {
			return models.OrderTPHit, true
		}
		return models.OrderFilled, true
	case "CANCELED", "CANCELLED", "EXPIRED":
		return models.OrderCancelled, true
	}
	return "", false
}

// transitionLegal encodes the post-confirmation lifecycle: PENDING can fill or
// cancel; a FILLED order can only ever close via its take-profit.
func transitionLegal(from, to models.OrderStatus) bool {
	switch from {
	case models.OrderPending:
		return to == models.OrderFilled || to == models.OrderCancelled
	case models.OrderFilled:
		return to == models.OrderTPHit
	}
	return false
}

func (l *Ledger) applyAccountUpdate(u *models.AccountUpdate) {
	if !safemath.Sane(u.PositionAmount) || !safemath.Sane(u.EntryPrice) {
		logger.S().Warnw("degenerate position update dropped",
			"amount", u.PositionAmount, "entry", u.EntryPrice)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if u.PositionAmount == 0 {
		l.position = nil
		logger.S().Infow("position flat", "symbol", u.Symbol)
		return
	}

	side := models.Buy
	qty := u.PositionAmount
	if qty < 0 {
		side = models.Sell
		qty = -qty
	}
	l.position = &models.Position{
		Symbol:     u.Symbol,
		Side:       side,
		EntryPrice: u.EntryPrice,
		Quantity:   qty,
		UpdatedAt:  l.now(),
	}
}

// SetMarkPrice records the last trade price from the market stream. Degenerate
// prices are dropped here so PnL derivation never sees them.
func (l *Ledger) SetMarkPrice(price float64) {
	if !safemath.Sane(price) || price <= 0 {
		logger.S().Warnw("degenerate mark price dropped", "price", price)
		return
	}
	l.mu.Lock()
	l.markPrice = price
	l.mu.Unlock()
	metrics.MarkPrice.Set(price)
}

// MarkPrice returns the last accepted trade price.
func (l *Ledger) MarkPrice() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.markPrice
}

// Snapshot returns a deep copy of current orders and position. Unrealized PnL
// is derived here from the mark price; it is never stored.
func (l *Ledger) Snapshot() models.LedgerSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := models.LedgerSnapshot{
		Orders:    make([]models.Order, 0, len(l.orders)),
		MarkPrice: l.markPrice,
		TakenAt:   l.now(),
	}
	for _, o := range l.orders {
		snap.Orders = append(snap.Orders, *o)
	}
	if l.position != nil {
		pos := *l.position
		snap.Position = &pos

		diff := l.markPrice - pos.EntryPrice
		if pos.Side == models.Sell {
			diff = -diff
		}
		pnl, degraded := safemath.Product(diff, pos.Quantity)
		if !degraded {
			snap.UnrealizedPnL = pnl
		}
	}
	return snap
}

// Restore seeds the ledger from a persisted snapshot at startup. Only orders
// that still matter (confirmed and non-terminal, or open FILLED positions'
// records) are kept live; terminal records are carried for the operator view.
func (l *Ledger) Restore(snap models.LedgerSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.orders = make(map[string]*models.Order, len(snap.Orders))
	l.byExchangeID = make(map[int64]string, len(snap.Orders))
	for i := range snap.Orders {
		o := snap.Orders[i]
		l.orders[o.CorrelationID] = &o
		if o.ExchangeOrderID != 0 {
			l.byExchangeID[o.ExchangeOrderID] = o.CorrelationID
		}
	}
	if snap.Position != nil {
		pos := *snap.Position
		l.position = &pos
	}
	if snap.MarkPrice > 0 {
		l.markPrice = snap.MarkPrice
	}
	logger.S().Infow("ledger restored", "orders", len(l.orders))
}
