package panel

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rendis/iterview/internal/streaming"
)

const wsWriteTimeout = 5 * time.Second

// handleWS upgrades the connection and pushes updates matching the query
// filter as JSON text messages. Inbound messages are ignored; the stream ends
// when the client closes.
func (s *PanelServer) handleWS(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch, unsubscribe, err := s.deps.Hub.Subscribe(ctx, filter)
	if err != nil {
		writeViewError(w, err)
		return
	}
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.deps.Logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	viewerID := uuid.NewString()
	logger := s.deps.Logger.With(slog.String("viewer_id", viewerID))
	logger.Info("viewer connected", slog.String("remote", r.RemoteAddr))

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(u streaming.Update) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(u)
	}
	if err := relay(ctx, ch, newWriteLimiter(s.deps.MinInterval), write); err != nil {
		logger.Debug("websocket write failed", slog.String("error", err.Error()))
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	logger.Info("viewer disconnected")
}
