package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rendis/iterview/pkg/schema"
)

// WebSocketConfig configures the live backend connection.
type WebSocketConfig struct {
	URL    string
	Header http.Header
	// Reconnect redials after the connection drops, backing off from
	// MinBackoff up to MaxBackoff.
	Reconnect  bool
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// WebSocket reads envelopes from the optimization backend.
type WebSocket struct {
	cfg    WebSocketConfig
	dec    *Decoder
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewWebSocket creates a WebSocket source.
func NewWebSocket(cfg WebSocketConfig, dec *Decoder, logger *slog.Logger) *WebSocket {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 10 * time.Second
	}
	return &WebSocket{
		cfg:    cfg,
		dec:    dec,
		dialer: websocket.DefaultDialer,
		logger: defaultLogger(logger).With(slog.String("source", "websocket"), slog.String("url", cfg.URL)),
	}
}

func (w *WebSocket) Name() string { return "websocket" }

// Run reads until ctx is done. Without Reconnect it returns once the first
// connection ends; a normal close is not an error.
func (w *WebSocket) Run(ctx context.Context, emit EmitFunc) error {
	backoff := w.cfg.MinBackoff
	for {
		received, err := w.session(ctx, emit)
		if ctx.Err() != nil {
			return nil
		}
		var emitErr *emitError
		if errors.As(err, &emitErr) {
			return emitErr.err
		}
		if !w.cfg.Reconnect {
			if err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		if received > 0 {
			backoff = w.cfg.MinBackoff
		}
		w.logger.Warn("connection lost, reconnecting",
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, w.cfg.MaxBackoff)
	}
}

type emitError struct{ err error }

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }

// session runs one connection and returns how many messages it received.
func (w *WebSocket) session(ctx context.Context, emit EmitFunc) (int, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, w.cfg.Header)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeSource, "dial %s", w.cfg.URL).WithCause(err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w.logger.Info("connected")
	received := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, err
		}
		received++

		events, err := w.dec.Decode(ctx, data)
		if err != nil {
			w.logger.Warn("skipping message", slog.String("error", err.Error()))
			continue
		}
		if err := emitAll(ctx, emit, events); err != nil {
			return received, &emitError{err: err}
		}
	}
}
