// Package metrics registers the Prometheus series the engine updates while
// running. They are served by the HTTP handler started in cmd/bot at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// StreamReconnects counts reconnect attempts per logical stream.
	StreamReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stream_reconnects_total",
			Help: "Reconnect attempts per stream",
		},
		[]string{"stream"},
	)

	// StreamMalformedFrames counts dropped undecodable frames per stream.
	StreamMalformedFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stream_malformed_frames_total",
			Help: "Malformed frames dropped per stream",
		},
		[]string{"stream"},
	)

	// StreamHeartbeats counts answered server pings per stream.
	StreamHeartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_stream_heartbeats_total",
			Help: "Server pings answered per stream",
		},
		[]string{"stream"},
	)

	// OrdersConfirmed counts orders the exchange acknowledged, by side.
	OrdersConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_confirmed_total",
			Help: "Orders confirmed created, by side",
		},
		[]string{"side"},
	)

	// OrdersFailed counts intents that never became exchange orders.
	OrdersFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_orders_failed_total",
			Help: "Order intents marked failed",
		},
	)

	// OrdersFilled counts fills reported by the account stream, by side.
	OrdersFilled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_filled_total",
			Help: "Orders filled, by side",
		},
		[]string{"side"},
	)

	// FilterSignals counts filter verdicts per filter name.
	FilterSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_filter_signals_total",
			Help: "Trend filter verdicts",
		},
		[]string{"filter", "signal"},
	)

	// BotPhase exposes the controller phase as labeled 0/1 series so
	// dashboards stay simple.
	BotPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_phase",
			Help: "Controller phase indicator (one labeled series per phase)",
		},
		[]string{"phase"},
	)

	// MarkPrice is the last trade price seen on the market stream.
	MarkPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_mark_price",
			Help: "Last trade price from the market stream",
		},
	)
)

func init() {
	prometheus.MustRegister(
		StreamReconnects,
		StreamMalformedFrames,
		StreamHeartbeats,
		OrdersConfirmed,
		OrdersFailed,
		OrdersFilled,
		FilterSignals,
		BotPhase,
		MarkPrice,
	)
}

// SetPhase flips the phase gauge so exactly one labeled series reads 1.
func SetPhase(phase string) {
	for _, p := range []string{"INACTIVE", "WAIT", "ACTIVATE", "ACTIVE", "PAUSE"} {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		BotPhase.WithLabelValues(p).Set(v)
	}
}
