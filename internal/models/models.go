package models

import (
	"fmt"
	"time"
)

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus tracks the lifecycle of a locally issued order.
// FAILED is reachable only from PENDING, before an exchange id exists.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderTPHit     OrderStatus = "TP_HIT"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderTPHit, OrderCancelled, OrderFailed:
		return true
	}
	return false
}

// Order is the ledger's record of one grid order. ExchangeOrderID stays zero
// until the exchange explicitly acknowledged creation; a snapshot never shows
// a non-zero id for anything else.
type Order struct {
	CorrelationID   string      `json:"correlation_id"`
	ExchangeOrderID int64       `json:"exchange_order_id,omitempty"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Price           float64     `json:"price"`
	Quantity        float64     `json:"quantity"`
	TakeProfitPrice float64     `json:"take_profit_price"`
	Status          OrderStatus `json:"status"`
	FailReason      string      `json:"fail_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	FilledAt        time.Time   `json:"filled_at,omitempty"`
	ClosedAt        time.Time   `json:"closed_at,omitempty"`
}

// Confirmed reports whether the exchange acknowledged this order.
func (o *Order) Confirmed() bool { return o.ExchangeOrderID != 0 }

// Position is the single open position for the engine's symbol. Unrealized
// PnL is derived from the mark price on read and intentionally not a field.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	Leverage   int       `json:"leverage"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BotPhase is the controller's activation state.
type BotPhase string

const (
	PhaseInactive BotPhase = "INACTIVE"
	PhaseWait     BotPhase = "WAIT"
	PhaseActivate BotPhase = "ACTIVATE"
	PhaseActive   BotPhase = "ACTIVE"
	PhasePause    BotPhase = "PAUSE"
)

// FilterSignal is a trading-permission verdict.
type FilterSignal string

const (
	SignalAllow FilterSignal = "ALLOW"
	SignalBlock FilterSignal = "BLOCK"
)

// EMADirection classifies the slope of an EMA between two updates.
type EMADirection string

const (
	DirectionRising  EMADirection = "RISING"
	DirectionFalling EMADirection = "FALLING"
	DirectionFlat    EMADirection = "FLAT"
)

// FilterState is the last computed output of one trend filter. It is replaced
// as a whole on every successful update, never mutated field by field.
type FilterState struct {
	Name      string       `json:"name"`
	Enabled   bool         `json:"enabled"`
	Signal    FilterSignal `json:"signal"`
	Direction EMADirection `json:"direction,omitempty"`
	MACD      float64      `json:"macd,omitempty"`
	MACDSig   float64      `json:"macd_signal,omitempty"`
	Histogram float64      `json:"histogram,omitempty"`
	EMA       float64      `json:"ema,omitempty"`
	KlineTime time.Time    `json:"kline_time"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Kline is one OHLC candle as consumed by the trend filters.
type Kline struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// ReactivationMode controls how trading resumes after a filter block.
type ReactivationMode string

const (
	// ReactivateImmediate resumes as soon as the gating filter allows again.
	ReactivateImmediate ReactivationMode = "immediate"
	// ReactivateFullCycle stays paused until an operator resumes (wait for flat).
	ReactivateFullCycle ReactivationMode = "full-cycle"
)

// GridConfig is the per-cycle grid geometry. Immutable while a cycle runs;
// changes take effect at the next WAIT→ACTIVATE transition.
type GridConfig struct {
	Symbol           string           `json:"symbol"`
	GridSpacing      float64          `json:"grid_spacing"`
	GridQuantity     float64          `json:"grid_quantity"`
	LevelsPerSide    int              `json:"levels_per_side"`
	MaxTotalOrders   int              `json:"max_total_orders"`
	Leverage         int              `json:"leverage"`
	TickSize         string           `json:"tick_size"`
	StepSize         string           `json:"step_size"`
	ReactivationMode ReactivationMode `json:"reactivation_mode"`
}

// DynamicTPConfig drives the funding-rate-adjusted take-profit.
type DynamicTPConfig struct {
	Enabled          bool    `json:"enabled"`
	BaseTP           float64 `json:"base_tp"`
	MinTP            float64 `json:"min_tp"`
	MaxTP            float64 `json:"max_tp"`
	SafetyMargin     float64 `json:"safety_margin"`
	CheckIntervalSec int     `json:"check_interval_sec"`
}

// MACDRule selects the bullish predicate for the MACD filter.
type MACDRule string

const (
	MACDLinesAboveZero  MACDRule = "lines_above_zero"
	MACDHistogramRising MACDRule = "histogram_rising"
)

// MACDConfig configures the MACD trend filter.
type MACDConfig struct {
	Enabled      bool     `json:"enabled"`
	FastPeriod   int      `json:"fast_period"`
	SlowPeriod   int      `json:"slow_period"`
	SignalPeriod int      `json:"signal_period"`
	Timeframe    string   `json:"timeframe"`
	BullishRule  MACDRule `json:"bullish_rule"`
}

// EMAConfig configures the EMA trend filter.
type EMAConfig struct {
	Enabled      bool    `json:"enabled"`
	Period       int     `json:"period"`
	Timeframe    string  `json:"timeframe"`
	Epsilon      float64 `json:"epsilon"`
	AllowRising  bool    `json:"allow_rising"`
	AllowFalling bool    `json:"allow_falling"`
}

// ConnState is the lifecycle state of one realtime connection.
type ConnState string

const (
	ConnConnecting ConnState = "CONNECTING"
	ConnConnected  ConnState = "CONNECTED"
	ConnClosing    ConnState = "CLOSING"
	ConnClosed     ConnState = "CLOSED"
)

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"`
	File       string `json:"file"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

// StreamConfig tunes the realtime connections.
type StreamConfig struct {
	HeartbeatTimeoutSec  int `json:"heartbeat_timeout_sec"`
	ReconnectCeilingSec  int `json:"reconnect_ceiling_sec"`
	ViolationThreshold   int `json:"violation_threshold"`
	CloseGraceSec        int `json:"close_grace_sec"`
	ListenKeyRefreshMin  int `json:"listen_key_refresh_min"`
}

// Config 结构体定义了机器人的所有配置参数
type Config struct {
	IsTestnet     bool   `json:"is_testnet"`
	DBPath        string `json:"db_path"`
	LiveAPIURL    string `json:"live_api_url"`
	LiveWSURL     string `json:"live_ws_url"`
	TestnetAPIURL string `json:"testnet_api_url"`
	TestnetWSURL  string `json:"testnet_ws_url"`
	Symbol        string `json:"symbol"`

	Grid      GridConfig      `json:"grid"`
	DynamicTP DynamicTPConfig `json:"dynamic_tp"`
	MACD      MACDConfig      `json:"macd_filter"`
	EMA       EMAConfig       `json:"ema_filter"`
	Stream    StreamConfig    `json:"stream"`
	LogConfig LogConfig       `json:"log"`

	TickIntervalSec int    `json:"tick_interval_sec"`
	MetricsAddr     string `json:"metrics_addr"`

	BaseURL   string `json:"base_url"`
	WSBaseURL string `json:"ws_base_url"`
}

// GatewayError 定义了交易所API返回的错误信息结构
type GatewayError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Error 方法使得 GatewayError 实现了 error 接口
func (e *GatewayError) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}
