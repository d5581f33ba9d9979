package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// ClientNotifier pushes notifications to connected MCP clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, payload map[string]any) error
}

// MCPNotifier implements ClientNotifier with MCP logging notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	watchers  *WatchRegistry
}

// NewMCPNotifier creates a notifier that pushes over the client's transport.
func NewMCPNotifier(mcpServer *server.MCPServer, watchers *WatchRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, watchers: watchers}
}

// Notify sends a notifications/message to the client session.
// Best-effort: a client that went away is forgotten and nil is returned.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, payload map[string]any) error {
	err := n.mcpServer.SendNotificationToSpecificClient(clientID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.watchers.Remove(clientID)
		return nil
	}
	return err
}
