// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/aquasync/internal/logging"
	"github.com/tomtom215/aquasync/internal/metrics"
)

// State is the listener's channel state.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

// String returns the log label for the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ListenerConfig tunes one push channel.
type ListenerConfig struct {
	// URL is the push endpoint; http(s) schemes are converted to ws(s).
	URL string

	// Entity is the table/entity family to subscribe to.
	Entity string

	// ReconnectBase is the initial backoff delay (default 2s).
	ReconnectBase time.Duration

	// ReconnectMax caps the backoff delay (default 32s).
	ReconnectMax time.Duration

	// DegradedAfter is the consecutive-failure count after which the
	// listener reports degraded (default 5).
	DegradedAfter int

	// Token is attached as a query parameter when non-empty.
	Token string
}

// subscribeFrame is the first message sent on an open channel.
type subscribeFrame struct {
	Type  string `json:"type"`
	Table string `json:"table"`
}

// Listener maintains one WebSocket channel for one entity family and feeds
// decoded change events to its handler.
//
// Reconnection is automatic and unbounded, with exponential backoff and a
// rate-limiter floor so repeated immediate closes cannot spin the loop
// below the base delay.
type Listener struct {
	cfg     ListenerConfig
	handler Handler

	state    atomic.Int32
	failures atomic.Int32

	connMu sync.Mutex
	conn   *websocket.Conn

	// limiter enforces the backoff floor across connect attempts.
	limiter *rate.Limiter
}

// NewListener creates a listener for cfg.Entity. The handler is invoked on
// the listener's goroutine; it must not block for long.
func NewListener(cfg ListenerConfig, handler Handler) *Listener {
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = 2 * time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = 32 * time.Second
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = 5
	}
	return &Listener{
		cfg:     cfg,
		handler: handler,
		limiter: rate.NewLimiter(rate.Every(cfg.ReconnectBase), 1),
	}
}

// State returns the current channel state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Degraded reports whether the channel has failed enough consecutive
// connect attempts that consumers should rely on polling alone.
func (l *Listener) Degraded() bool {
	return int(l.failures.Load()) >= l.cfg.DegradedAfter
}

// Serve implements suture.Service: it runs the connect/read loop until the
// context is canceled, then closes the channel and returns ctx.Err().
func (l *Listener) Serve(ctx context.Context) error {
	defer l.setState(StateClosed)
	defer l.closeConn()

	backoff := l.cfg.ReconnectBase

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.setState(StateConnecting)

		// Floor: even immediate server closes cannot drive connect
		// attempts faster than the base delay.
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}

		conn, err := l.dial(ctx)
		if err != nil {
			l.failures.Add(1)
			l.setState(StateReconnecting)
			metrics.RealtimeReconnects.WithLabelValues(l.cfg.Entity).Inc()
			logging.Warn().
				Err(err).
				Str("entity", l.cfg.Entity).
				Dur("retry_in", backoff).
				Msg("push channel dial failed")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = min(backoff*2, l.cfg.ReconnectMax)
			continue
		}

		l.setConn(conn)
		l.failures.Store(0)
		backoff = l.cfg.ReconnectBase
		l.setState(StateOpen)
		logging.Info().Str("entity", l.cfg.Entity).Msg("push channel open")

		if err := l.subscribe(conn); err != nil {
			logging.Warn().Err(err).Str("entity", l.cfg.Entity).Msg("push channel subscribe failed")
			l.closeConn()
			l.setState(StateReconnecting)
			continue
		}

		l.readLoop(ctx, conn)
		l.closeConn()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.setState(StateReconnecting)
		metrics.RealtimeReconnects.WithLabelValues(l.cfg.Entity).Inc()
	}
}

// String implements fmt.Stringer for supervisor logging.
func (l *Listener) String() string {
	return "realtime-" + l.cfg.Entity
}

// dial establishes the WebSocket connection.
func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	wsURL, err := l.buildChannelURL()
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return conn, nil
}

// buildChannelURL converts the configured URL to ws(s) and attaches the
// entity and token query parameters.
func (l *Listener) buildChannelURL() (string, error) {
	parsed, err := url.Parse(l.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse push url: %w", err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}

	q := parsed.Query()
	q.Set("table", l.cfg.Entity)
	if l.cfg.Token != "" {
		q.Set("token", l.cfg.Token)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// subscribe announces the entity family on a fresh channel.
func (l *Listener) subscribe(conn *websocket.Conn) error {
	frame := subscribeFrame{Type: "subscribe", Table: l.cfg.Entity}
	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return err
	}
	return conn.WriteJSON(frame)
}

// readLoop consumes messages until the connection drops or ctx ends.
func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			logging.Debug().Err(err).Str("entity", l.cfg.Entity).Msg("failed to set read deadline")
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Str("entity", l.cfg.Entity).Msg("push channel closed by server")
				return
			}
			if ctx.Err() != nil {
				return
			}
			logging.Warn().Err(err).Str("entity", l.cfg.Entity).Msg("push channel read error")
			return
		}

		l.handleMessage(message)
	}
}

// handleMessage decodes and dispatches one frame. Malformed frames are
// dropped; a broken producer must not kill the channel.
func (l *Listener) handleMessage(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		logging.Warn().Err(err).Str("entity", l.cfg.Entity).Msg("failed to parse change event")
		return
	}
	if ev.Entity == "" {
		ev.Entity = l.cfg.Entity
	}
	l.handler(ev)
}

// setState records a state transition.
func (l *Listener) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	if old != s {
		metrics.RealtimeState.WithLabelValues(l.cfg.Entity).Set(float64(s))
		logging.Debug().
			Str("entity", l.cfg.Entity).
			Str("from", old.String()).
			Str("to", s.String()).
			Msg("push channel state")
	}
}

func (l *Listener) setConn(conn *websocket.Conn) {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	l.conn = conn
}

// closeConn closes the current connection, sending a close frame on a
// best-effort basis. Safe to call with no connection and safe to call
// twice.
func (l *Listener) closeConn() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return
	}
	_ = l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err := l.conn.Close(); err != nil {
		logging.Debug().Err(err).Str("entity", l.cfg.Entity).Msg("push channel close error")
	}
	l.conn = nil
}
