package models

import "time"

// EventType discriminates the typed frames a realtime connection emits.
type EventType int

const (
	TradeTickEvent EventType = iota
	KlineEvent
	OrderUpdateEvent
	AccountUpdateEvent
	HeartbeatEvent
	StreamErrorEvent
	ReconnectEvent
)

// StreamEvent is one normalized frame from a realtime connection. Exactly one
// payload pointer is set, matching Type.
type StreamEvent struct {
	Type      EventType
	Stream    string
	Time      time.Time
	Tick      *TradeTick
	Kline     *Kline
	Order     *OrderUpdate
	Account   *AccountUpdate
	Err       *StreamError
}

// TradeTick is a single trade print from the market stream.
type TradeTick struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"-"`
	Quantity  float64 `json:"-"`
	TradeTime int64   `json:"T"`
}

// OrderUpdate carries an authoritative order status change from the account
// stream. Status values use the exchange vocabulary and are mapped by the
// ledger (FILLED, CANCELED, EXPIRED...).
type OrderUpdate struct {
	Symbol          string  `json:"s"`
	ClientOrderID   string  `json:"c"`
	ExchangeOrderID int64   `json:"i"`
	Side            Side    `json:"S"`
	Status          string  `json:"X"`
	Price           float64 `json:"-"`
	FilledQuantity  float64 `json:"-"`
	AvgPrice        float64 `json:"-"`
	IsTakeProfit    bool    `json:"-"`
	TradeTime       int64   `json:"T"`
}

// AccountUpdate carries a position change pushed by the account stream.
type AccountUpdate struct {
	Symbol         string  `json:"s"`
	PositionAmount float64 `json:"-"`
	EntryPrice     float64 `json:"-"`
	Reason         string  `json:"m"`
}

// StreamError is an explicit error frame sent by the exchange inside an
// otherwise healthy session. It is surfaced to consumers, never swallowed.
type StreamError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// LedgerSnapshot is the immutable view handed to the controller and the
// operator surface. It shares no memory with the live ledger.
type LedgerSnapshot struct {
	Orders    []Order   `json:"orders"`
	Position  *Position `json:"position,omitempty"`
	MarkPrice float64   `json:"mark_price"`
	// UnrealizedPnL is recomputed from MarkPrice at snapshot time.
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	TakenAt       time.Time `json:"taken_at"`
}

// StatusSnapshot is the read-only view served to the operator surface.
type StatusSnapshot struct {
	Phase       BotPhase      `json:"phase"`
	PhaseSince  time.Time     `json:"phase_since"`
	PhaseReason string        `json:"phase_reason"`
	Filters     []FilterState `json:"filters"`
	Ledger      LedgerSnapshot `json:"ledger"`
}

// PersistedState is what survives a restart: the controller phase plus the
// ledger's reconciled orders and position.
type PersistedState struct {
	Phase          BotPhase       `json:"phase"`
	PhaseReason    string         `json:"phase_reason"`
	AnchorPrice    float64        `json:"anchor_price"`
	Ledger         LedgerSnapshot `json:"ledger"`
	LastUpdateTime time.Time      `json:"last_update_time"`
}
