// Package mcp exposes iterview sessions to agents over the Model Context
// Protocol.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/internal/streaming"
)

// IterviewServerDeps holds the dependencies for creating an IterviewServer.
type IterviewServerDeps struct {
	Sessions *session.Manager
	Hub      streaming.UpdateHub
	Logger   *slog.Logger
	Version  string
}

// IterviewServer wraps an MCP server with iterview tool handlers.
type IterviewServer struct {
	sessions  *session.Manager
	hub       streaming.UpdateHub
	logger    *slog.Logger
	watchers  *WatchRegistry
	notifier  ClientNotifier
	mcpServer *server.MCPServer
}

// NewIterviewServer creates a new IterviewServer with every tool registered.
func NewIterviewServer(deps IterviewServerDeps) *IterviewServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &IterviewServer{
		sessions: deps.Sessions,
		hub:      deps.Hub,
		logger:   logger,
		watchers: NewWatchRegistry(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, cs server.ClientSession) {
		s.watchers.Remove(cs.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"iterview",
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("iterview visualizes live prompt-optimization runs. Use iterview.sessions to list runs, iterview.snapshot for the full state of one run, iterview.diagram to draw its agent graph, iterview.stages for the pipeline stage catalog and iterview.watch to be notified as a run changes stage or finishes."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.watchers)
	return s
}

// Serve relays watch notifications and serves stdio until ctx is cancelled
// or stdin closes.
func (s *IterviewServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.RelayNotifications(ctx); err != nil {
			s.logger.Warn("watch relay stopped", slog.String("error", err.Error()))
		}
	}()

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *IterviewServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *IterviewServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: sessionsTool(), Handler: s.handleSessions},
		{Tool: snapshotTool(), Handler: s.handleSnapshot},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: stagesTool(), Handler: s.handleStages},
		{Tool: watchTool(), Handler: s.handleWatch},
	}
}

// --- Tool definitions ---

func sessionsTool() mcp.Tool {
	return mcp.NewTool("iterview.sessions",
		mcp.WithDescription("List open visualization sessions"),
	)
}

func snapshotTool() mcp.Tool {
	return mcp.NewTool("iterview.snapshot",
		mcp.WithDescription("Get the current state of a session"),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session ID or correlation ID")),
		mcp.WithBoolean("include_text", mcp.DefaultBool(true), mcp.Description("Include the thinking transcript text")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("iterview.diagram",
		mcp.WithDescription("Draw the agent graph of a session. Returns ASCII art, Mermaid flowchart syntax, or a PNG image"),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session ID or correlation ID")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
	)
}

func stagesTool() mcp.Tool {
	return mcp.NewTool("iterview.stages",
		mcp.WithDescription("List the pipeline stage catalog in display order"),
	)
}

func watchTool() mcp.Tool {
	return mcp.NewTool("iterview.watch",
		mcp.WithDescription("Receive a notification whenever a run changes stage or finishes"),
		mcp.WithString("correlation_id", mcp.Required(), mcp.Description("Correlation ID of the run to watch")),
	)
}
