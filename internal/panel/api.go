package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/rendis/iterview/internal/diagram"
	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/pkg/schema"
)

// handleListSessions lists every open session, oldest first.
func (s *PanelServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Sessions.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": list,
		"count":    len(list),
	})
}

// handleGetSession returns the latest snapshot of a session. The id may be a
// session ID or a correlation ID.
func (s *PanelServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleDiagram renders the session graph as ascii (default), mermaid or png.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeViewError(w, err)
		return
	}
	model := diagram.Build(sess.Snapshot())

	switch format := r.URL.Query().Get("format"); format {
	case "", "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, diagram.RenderASCIIWith(model, diagram.ASCIIOptions{Color: queryBool(r, "color")}))
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, diagram.RenderMermaid(model))
	case "png":
		img, err := diagram.RenderImage(r.Context(), model)
		if err != nil {
			s.deps.Logger.Error("diagram render failed", slog.String("session_id", sess.ID()), slog.String("error", err.Error()))
			writeViewError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q (want ascii, mermaid or png)", format))
	}
}

// handleAutoScroll locks or unlocks transcript auto-scroll.
func (s *PanelServer) handleAutoScroll(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeViewError(w, err)
		return
	}

	var body struct {
		Locked *bool `json:"locked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Locked == nil {
		writeError(w, http.StatusBadRequest, "locked is required")
		return
	}

	if err := sess.SetAutoScrollLocked(r.Context(), *body.Locked); err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleComplete marks a streaming transcript complete.
func (s *PanelServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, (*session.Session).ForceComplete)
}

// handleReset returns a session to its initial state.
func (s *PanelServer) handleReset(w http.ResponseWriter, r *http.Request) {
	s.sessionAction(w, r, (*session.Session).Reset)
}

func (s *PanelServer) sessionAction(w http.ResponseWriter, r *http.Request, action func(*session.Session, context.Context) error) {
	sess, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeViewError(w, err)
		return
	}
	if err := action(sess, r.Context()); err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleCloseSession closes and forgets a session.
func (s *PanelServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Sessions.Close(id); err != nil {
		writeViewError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ok": "true",
		"id": id,
	})
}

// handleIngest accepts one backend envelope and routes it to its session.
// With ?wait=true it returns only after the event has been applied.
func (s *PanelServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}
	if len(raw) > maxEnvelopeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "envelope too large")
		return
	}

	ev, warnings, err := s.deps.Decoder.Decode(raw)
	if err != nil {
		writeViewError(w, err)
		return
	}

	sess, err := s.deps.Sessions.Ingest(r.Context(), ev)
	if err != nil {
		writeViewError(w, err)
		return
	}
	if queryBool(r, "wait") {
		if err := sess.Flush(r.Context()); err != nil {
			writeViewError(w, err)
			return
		}
	}

	resp := map[string]any{
		"session_id":     sess.ID(),
		"correlation_id": ev.CorrelationID,
		"seq":            ev.Sequence,
	}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// handleStages serves the iteration stage catalog.
func (s *PanelServer) handleStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stages": schema.AllStages(),
	})
}

func (s *PanelServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.deps.Sessions.Len(),
	})
}
