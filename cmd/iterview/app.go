package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rendis/iterview/internal/expressions"
	"github.com/rendis/iterview/internal/logging"
	"github.com/rendis/iterview/internal/panel"
	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/internal/source"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/internal/thinking"
	"github.com/rendis/iterview/internal/validation"
	"github.com/rendis/iterview/pkg/schema"
)

// app is the wiring shared by every command that runs sessions.
type app struct {
	cfg       Config
	logger    *slog.Logger
	level     *slog.LevelVar
	motion    atomic.Bool
	registry  *prometheus.Registry
	hub       *streaming.MemoryHub
	sessions  *session.Manager
	envelopes *validation.EnvelopeDecoder
}

func newApp(ctx context.Context, cfg Config, logOut io.Writer) (*app, error) {
	logger, level := logging.New(logOut, cfg.LogLevel, cfg.LogFormat)

	filters, err := expressions.NewFilterEngine()
	if err != nil {
		return nil, fmt.Errorf("filter engine: %w", err)
	}
	envelopes, err := validation.NewEnvelopeDecoder(nil)
	if err != nil {
		return nil, fmt.Errorf("envelope decoder: %w", err)
	}

	var summarize thinking.Summarizer
	if cfg.Text.SummaryExpr != "" {
		summarize, err = thinking.ExprSummarizer(cfg.Text.SummaryExpr, logger)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig, "summary expression: %v", err).WithCause(err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		level:     level,
		registry:  registry,
		hub:       streaming.NewMemoryHub(streaming.WithFilterEngine(filters), streaming.WithLogger(logger)),
		envelopes: envelopes,
	}
	a.motion.Store(cfg.ReducedMotion)

	a.sessions = session.NewManager(ctx, session.ManagerConfig{
		Session: session.Config{
			Edge:          cfg.Edge,
			MaxChars:      cfg.Text.MaxChars,
			MaxLines:      cfg.Text.MaxLines,
			Summarize:     summarize,
			ReducedMotion: a.motion.Load,
		},
		Retention:   cfg.Sessions.Retention,
		IdleTimeout: cfg.Sessions.IdleTimeout,
		MaxSessions: cfg.Sessions.MaxSessions,
	}, session.Deps{
		Hub:     a.hub,
		Metrics: session.NewMetrics(registry),
		Logger:  logger,
	})
	return a, nil
}

func (a *app) panelHandler(cfg PanelConfig) http.Handler {
	return panel.NewPanelServer(panel.PanelDeps{
		Sessions:    a.sessions,
		Hub:         a.hub,
		Decoder:     a.envelopes,
		Gatherer:    a.registry,
		Logger:      a.logger,
		MinInterval: cfg.MinInterval,
	}).Handler()
}

// ingest is the EmitFunc feeding sources into sessions. Rejected events are
// logged and skipped so one bad run does not stop the feed.
func (a *app) ingest(ctx context.Context, ev schema.Event) error {
	if _, err := a.sessions.Ingest(ctx, ev); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.WarnContext(ctx, "event rejected",
			slog.String("correlation_id", ev.CorrelationID),
			slog.Int64("seq", ev.Sequence),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// applyReload applies the live-tunable part of a settings change.
func (a *app) applyReload(next Config, swapper *handlerSwapper) configDiff {
	d := diffConfigs(a.cfg, next)
	if d.LogLevelChanged {
		a.level.Set(logging.ParseLevel(next.LogLevel))
		a.cfg.LogLevel = next.LogLevel
	}
	if d.ReducedMotionChanged {
		a.motion.Store(next.ReducedMotion)
		a.cfg.ReducedMotion = next.ReducedMotion
	}
	if d.PanelChanged && swapper != nil {
		swapper.Swap(a.panelHandler(next.Panel))
		a.cfg.Panel = next.Panel
	}
	return d
}

// newSource builds the configured event source. It returns nil for "none".
func newSource(cfg SourceConfig, logger *slog.Logger) (source.Source, error) {
	switch cfg.Kind {
	case sourceNone, "":
		return nil, nil
	case sourceDemo:
		corr := cfg.CorrelationID
		if corr == "" {
			corr = "demo-" + uuid.NewString()[:8]
		}
		demo, err := source.NewDemo(source.DemoConfig{
			CorrelationID: corr,
			Iterations:    cfg.Iterations,
			Tokens:        cfg.Tokens,
			Interval:      cfg.Interval,
		})
		if err != nil {
			return nil, err
		}
		return demo, nil
	}

	dec, err := source.NewDecoder(cfg.Mapping, logger)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "source mapping: %v", err).WithCause(err)
	}
	switch cfg.Kind {
	case sourceFile:
		return source.NewFile(source.FileConfig{Path: cfg.Path, Follow: cfg.Follow}, dec, logger), nil
	case sourceWebSocket:
		return source.NewWebSocket(source.WebSocketConfig{URL: cfg.URL, Reconnect: true}, dec, logger), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "unknown source kind %q", cfg.Kind)
	}
}
