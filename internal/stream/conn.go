// Package stream maintains the realtime WebSocket connections to the
// exchange. The protocol liveness signal is the application-level JSON
// heartbeat ({"ping": ts} answered by {"pong": ts}); transport-level
// ping/pong keepalive stays disabled so the two mechanisms never compete for
// the read deadline.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trend-grid-bot-go/internal/logger"
	"trend-grid-bot-go/internal/metrics"
	"trend-grid-bot-go/internal/models"
)

const initialBackoff = 2 * time.Second

// nextBackoff advances the reconnect delay: grow by half, never past the
// ceiling.
func nextBackoff(cur, ceiling time.Duration) time.Duration {
	next := time.Duration(float64(cur) * 1.5)
	if next > ceiling {
		next = ceiling
	}
	return next
}

// Options wires one logical stream. URL is resolved per dial attempt so the
// account stream can mint a fresh listen key on every reconnect.
type Options struct {
	// Name labels the stream in logs, metrics and events ("market", "account").
	Name string

	// URL returns the dial target for the next attempt.
	URL func() (string, error)

	// Subscribe lists the channels to request right after the dial. Empty for
	// streams whose URL already selects the data.
	Subscribe []string

	// KeepAlive, when set, runs every KeepAliveEvery for the life of a
	// session (listen key renewal). A keepalive failure is fatal to the
	// session: the server will drop a stale key anyway, so reconnecting with
	// a fresh one beats limping on.
	KeepAlive      func() error
	KeepAliveEvery time.Duration

	Cfg models.StreamConfig
}

// Conn is one auto-reconnecting stream connection. Events are delivered on a
// single channel, closed only when the connection shuts down for good.
type Conn struct {
	opts   Options
	dialer *websocket.Dialer

	events chan models.StreamEvent

	mu    sync.RWMutex
	state models.ConnState

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a connection; Connect starts it.
func New(opts Options) (*Conn, error) {
	if opts.Name == "" {
		return nil, errors.New("stream: options need a name")
	}
	if opts.URL == nil {
		return nil, errors.New("stream: options need a URL resolver")
	}
	if opts.KeepAlive != nil && opts.KeepAliveEvery <= 0 {
		return nil, errors.New("stream: keepalive set without an interval")
	}
	return &Conn{
		opts:   opts,
		dialer: websocket.DefaultDialer,
		events: make(chan models.StreamEvent, 256),
		state:  models.ConnConnecting,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Events returns the delivery channel. It closes after Close (or context
// cancellation) once the socket is down.
func (c *Conn) Events() <-chan models.StreamEvent {
	return c.events
}

// State reports the connection lifecycle state.
func (c *Conn) State() models.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Conn) setState(s models.ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect starts the dial/read/reconnect loop in the background.
func (c *Conn) Connect(ctx context.Context) {
	go c.run(ctx)
}

// Close requests a graceful shutdown and waits for the loop to finish.
func (c *Conn) Close() {
	c.stopOnce.Do(func() {
		c.setState(models.ConnClosing)
		close(c.stop)
	})
	<-c.done
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.events)
	defer c.setState(models.ConnClosed)

	ceiling := time.Duration(c.opts.Cfg.ReconnectCeilingSec) * time.Second
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}
	backoff := initialBackoff

	for {
		if c.stopping(ctx) {
			return
		}
		c.setState(models.ConnConnecting)

		err := c.session(ctx, &backoff)
		if c.stopping(ctx) {
			return
		}

		c.logSessionEnd(err)
		metrics.StreamReconnects.WithLabelValues(c.opts.Name).Inc()
		c.emit(ctx, models.StreamEvent{
			Type: models.ReconnectEvent, Stream: c.opts.Name, Time: time.Now(),
		})

		logger.S().Infow("reconnecting", "stream", c.opts.Name, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, ceiling)
	}
}

func (c *Conn) stopping(ctx context.Context) bool {
	select {
	case <-c.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// logSessionEnd keeps expected closes quiet. A normal or going-away close is
// routine server maintenance, everything else deserves a warning.
func (c *Conn) logSessionEnd(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.S().Infow("stream closed by server", "stream", c.opts.Name, "err", err)
		return
	}
	logger.S().Warnw("stream session ended", "stream", c.opts.Name, "err", err)
}

// session runs one dial-to-disconnect lifetime. The caller's backoff pointer
// is reset to the initial delay once the session survives its first
// heartbeat, so a connection that dies right after dialing keeps escalating.
func (c *Conn) session(ctx context.Context, backoff *time.Duration) error {
	target, err := c.opts.URL()
	if err != nil {
		return fmt.Errorf("resolve url: %w", err)
	}

	ws, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.Name, err)
	}
	defer ws.Close()

	// The JSON heartbeat is the sole liveness signal. Swallow any
	// transport-level pings instead of letting the default handler answer
	// them, and never extend the read deadline from a transport pong.
	ws.SetPingHandler(func(string) error { return nil })
	ws.SetPongHandler(func(string) error { return nil })

	heartbeatTimeout := time.Duration(c.opts.Cfg.HeartbeatTimeoutSec) * time.Second
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 60 * time.Second
	}

	var writeMu sync.Mutex
	writeText := func(payload []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return ws.WriteMessage(websocket.TextMessage, payload)
	}

	if len(c.opts.Subscribe) > 0 {
		sub, err := json.Marshal(map[string]interface{}{
			"op":   "subscribe",
			"args": c.opts.Subscribe,
		})
		if err != nil {
			return err
		}
		if err := writeText(sub); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	c.setState(models.ConnConnected)
	logger.S().Infow("stream connected", "stream", c.opts.Name, "url", target)

	// Session-scoped shutdown plumbing: a graceful Close writes the close
	// frame, gives the server a grace window to mirror it, then tears the
	// socket down so the read loop unblocks.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-sessionDone:
			return
		case <-ctx.Done():
		case <-c.stop:
		}
		grace := time.Duration(c.opts.Cfg.CloseGraceSec) * time.Second
		if grace <= 0 {
			grace = 5 * time.Second
		}
		writeMu.Lock()
		ws.SetWriteDeadline(time.Now().Add(grace))
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		select {
		case <-sessionDone:
		case <-time.After(grace):
		}
		ws.Close()
	}()

	if c.opts.KeepAlive != nil {
		go func() {
			ticker := time.NewTicker(c.opts.KeepAliveEvery)
			defer ticker.Stop()
			for {
				select {
				case <-sessionDone:
					return
				case <-ticker.C:
					if err := c.opts.KeepAlive(); err != nil {
						logger.S().Errorw("stream keepalive failed, dropping session",
							"stream", c.opts.Name, "err", err)
						ws.Close()
						return
					}
					logger.S().Debugw("stream keepalive ok", "stream", c.opts.Name)
				}
			}
		}()
	}

	violationLimit := c.opts.Cfg.ViolationThreshold
	if violationLimit <= 0 {
		violationLimit = 10
	}

	heartbeatSeen := false
	violations := 0
	ws.SetReadDeadline(time.Now().Add(heartbeatTimeout))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		ev, pong, err := parseFrame(c.opts.Name, data)
		if err != nil {
			violations++
			metrics.StreamMalformedFrames.WithLabelValues(c.opts.Name).Inc()
			logger.S().Warnw("malformed frame dropped",
				"stream", c.opts.Name, "err", err, "consecutive", violations)
			if violations >= violationLimit {
				return fmt.Errorf("%d consecutive protocol violations", violations)
			}
			continue
		}
		violations = 0

		if pong != nil {
			if err := writeText(pong); err != nil {
				return fmt.Errorf("write pong: %w", err)
			}
			// Only an answered application heartbeat extends the deadline.
			ws.SetReadDeadline(time.Now().Add(heartbeatTimeout))
			metrics.StreamHeartbeats.WithLabelValues(c.opts.Name).Inc()
			if !heartbeatSeen {
				heartbeatSeen = true
				*backoff = initialBackoff
			}
		}

		if ev != nil {
			c.emit(ctx, *ev)
		}
	}
}

func (c *Conn) emit(ctx context.Context, ev models.StreamEvent) {
	select {
	case c.events <- ev:
	case <-c.stop:
	case <-ctx.Done():
	}
}
