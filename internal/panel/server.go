// Package panel serves the HTTP surface of iterview: a JSON API over the
// open sessions, live snapshot streams over SSE and websocket, metrics and
// health.
package panel

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/internal/validation"
)

const maxEnvelopeBytes = 1 << 20

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Sessions *session.Manager
	Hub      streaming.UpdateHub
	Decoder  *validation.EnvelopeDecoder
	// Gatherer backs /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// MinInterval is the minimum spacing between writes to one stream
	// subscriber. Snapshots arriving faster are coalesced per session.
	MinInterval time.Duration
}

// PanelServer serves the panel routes.
type PanelServer struct {
	deps     PanelDeps
	upgrader websocket.Upgrader
}

// NewPanelServer creates a new PanelServer.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &PanelServer{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The panel is a local viewer; any origin may attach.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Sessions.
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/sessions/{id}/diagram", s.handleDiagram)
	mux.HandleFunc("POST /api/sessions/{id}/autoscroll", s.handleAutoScroll)
	mux.HandleFunc("POST /api/sessions/{id}/complete", s.handleComplete)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.handleReset)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleCloseSession)

	// Ingest and metadata.
	mux.HandleFunc("POST /api/events", s.handleIngest)
	mux.HandleFunc("GET /api/meta/iteration-stages", s.handleStages)

	// Live streams.
	mux.HandleFunc("GET /sse/sessions/{id}", s.handleSSESession)
	mux.HandleFunc("GET /sse/events", s.handleSSEEvents)
	mux.HandleFunc("GET /ws", s.handleWS)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}
