package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/iterview/internal/diagram"
	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/pkg/schema"
)

// handleSessions lists open sessions.
func (s *IterviewServer) handleSessions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list := s.sessions.List()
	return marshalResult(map[string]any{
		"sessions": list,
		"count":    len(list),
	})
}

// handleSnapshot returns the latest snapshot of a session.
func (s *IterviewServer) handleSnapshot(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session is required"), nil
	}
	sess, err := s.sessions.Get(key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", err)), nil
	}

	snap := sess.Snapshot()
	if !req.GetBool("include_text", true) && snap.Thinking != nil {
		cp := *snap
		th := *snap.Thinking
		th.Text = ""
		cp.Thinking = &th
		snap = &cp
	}
	return marshalResult(snap)
}

// handleDiagram draws the session graph in the requested format.
func (s *IterviewServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
	key, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError("session is required"), nil
	}
	sess, err := s.sessions.Get(key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", err)), nil
	}

	model := diagram.Build(sess.Snapshot())
	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(png), "image/png"), nil
	}
}

// handleStages returns the stage catalog.
func (s *IterviewServer) handleStages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"stages": schema.AllStages()})
}

// handleWatch subscribes the calling client to notifications for a run.
func (s *IterviewServer) handleWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	corr, err := req.RequireString("correlation_id")
	if err != nil {
		return mcp.NewToolResultError("correlation_id is required"), nil
	}
	cs := server.ClientSessionFromContext(ctx)
	if cs == nil {
		return mcp.NewToolResultError("watch needs a session-aware transport"), nil
	}
	s.watchers.Register(corr, cs.SessionID())
	return marshalResult(map[string]any{
		"watching": corr,
		"client":   cs.SessionID(),
	})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// RelayNotifications notifies watching clients when a watched run changes
// stage, finishes or closes. It returns when ctx is done.
func (s *IterviewServer) RelayNotifications(ctx context.Context) error {
	if s.hub == nil {
		<-ctx.Done()
		return nil
	}
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.UpdateFilter{
		Types: []string{streaming.UpdateSnapshot, streaming.UpdateSessionClosed},
	})
	if err != nil {
		return err
	}
	defer cancel()

	last := make(map[string]string)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			s.relay(ctx, u, last)
		}
	}
}

func (s *IterviewServer) relay(ctx context.Context, u streaming.Update, last map[string]string) {
	watchers := s.watchers.WatchersOf(u.CorrelationID)
	if len(watchers) == 0 {
		return
	}

	data := map[string]any{
		"session_id":     u.SessionID,
		"correlation_id": u.CorrelationID,
		"event":          u.Type,
	}
	if u.Type == streaming.UpdateSessionClosed {
		delete(last, u.SessionID)
	} else {
		snap, ok := u.Payload.(*session.Snapshot)
		if !ok {
			return
		}
		key := fmt.Sprintf("%s|%t", snap.StageLabel, snap.Terminal())
		if last[u.SessionID] == key {
			return
		}
		last[u.SessionID] = key
		data["stage"] = snap.StageLabel
		data["terminal"] = snap.Terminal()
		data["iteration"] = snap.Iteration
		data["nodes"] = snap.Nodes
	}

	payload := map[string]any{
		"level":  "info",
		"logger": "iterview",
		"data":   data,
	}
	for _, clientID := range watchers {
		if err := s.notifier.Notify(ctx, clientID, payload); err != nil {
			s.logger.Debug("watch notification failed",
				slog.String("client", clientID),
				slog.String("error", err.Error()),
			)
		}
	}
}
