package panel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rendis/iterview/internal/streaming"
)

// handleSSESession streams the snapshots of one session. The current
// snapshot is sent first.
func (s *PanelServer) handleSSESession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeViewError(w, err)
		return
	}
	initial := streaming.Update{
		SessionID:     sess.ID(),
		CorrelationID: sess.CorrelationID(),
		Type:          streaming.UpdateSnapshot,
		Payload:       sess.Snapshot(),
	}
	s.serveSSE(w, r, streaming.UpdateFilter{SessionID: sess.ID()}, &initial)
}

// handleSSEEvents streams updates of every session matching the query filter.
func (s *PanelServer) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, filterFromQuery(r), nil)
}

// serveSSE is the common SSE implementation.
func (s *PanelServer) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.UpdateFilter, initial *streaming.Update) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Warn("SSE subscribe failed", slog.String("error", err.Error()))
		writeViewError(w, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	write := func(u streaming.Update) error {
		data, err := json.Marshal(u)
		if err != nil {
			return nil
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Type, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if initial != nil {
		if err := write(*initial); err != nil {
			return
		}
	} else {
		flusher.Flush()
	}

	if err := relay(r.Context(), ch, newWriteLimiter(s.deps.MinInterval), write); err != nil {
		s.deps.Logger.Debug("SSE client gone", slog.String("error", err.Error()))
	}
}
