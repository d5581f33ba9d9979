package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/iterview/internal/logging"
	"github.com/rendis/iterview/internal/scheduler"
	"github.com/rendis/iterview/internal/source"
	"github.com/rendis/iterview/internal/telemetry"
	iterviewmcp "github.com/rendis/iterview/pkg/mcp"
)

const (
	shutdownTimeout = 5 * time.Second
	schedulerTick   = 5 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the viewer panel and ingest events",
		Long: `serve runs the HTTP panel (JSON API, SSE, WebSocket and /metrics),
ingests events posted to /api/events and from the configured source, and
reaps finished sessions on the configured cron schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd, opts, cfg)
		},
	}
	f := cmd.Flags()
	f.String("listen", "", "Listen address (default :4200)")
	f.Bool("reduced-motion", false, "Skip the flowing phase of edge animations")
	f.Duration("min-interval", 0, "Minimum spacing between stream writes to one viewer")
	f.String("trace", "", "Trace exporter: none or stdout")
	addSourceFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, cfg Config) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.sessions.CloseAll()

	shutdownTrace, err := a.initTracing(ctx)
	if err != nil {
		return err
	}
	defer shutdownTrace()

	src, err := newSource(cfg.Source, a.logger)
	if err != nil {
		return err
	}
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	swapper := newHandlerSwapper(a.panelHandler(cfg.Panel))
	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end when the server shuts down.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		a.logger.Info("panel listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return runScheduler(gctx, sched) })
	if src != nil {
		g.Go(func() error { return a.runSource(gctx, src) })
	}
	g.Go(func() error {
		overrides := func(c *Config) { _ = applyFlags(cmd, c) }
		return watchSettings(gctx, opts.configPath, a.logger,
			a.reloadFunc(opts.configPath, opts.getenv, overrides, swapper))
	})

	err = g.Wait()
	a.logger.Info("panel stopped")
	return err
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose sessions to agents over MCP (stdio)",
		Long: `mcp serves the iterview MCP tools on stdin/stdout while ingesting events
from the configured source. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runMCP(cmd, cfg)
		},
	}
	cmd.Flags().Bool("reduced-motion", false, "Skip the flowing phase of edge animations")
	addSourceFlags(cmd)
	return cmd
}

func runMCP(cmd *cobra.Command, cfg Config) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.sessions.CloseAll()

	src, err := newSource(cfg.Source, a.logger)
	if err != nil {
		return err
	}
	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	srv := iterviewmcp.NewIterviewServer(iterviewmcp.IterviewServerDeps{
		Sessions: a.sessions,
		Hub:      a.hub,
		Logger:   a.logger,
		Version:  version,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// stdin closing ends the whole command.
		defer cancel()
		if err := srv.Serve(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	})
	g.Go(func() error { return runScheduler(gctx, sched) })
	if src != nil {
		g.Go(func() error { return a.runSource(gctx, src) })
	}
	return g.Wait()
}

func (a *app) initTracing(ctx context.Context) (func(), error) {
	traceCfg := a.cfg.Trace
	traceCfg.ServiceVersion = version
	shutdown, err := telemetry.Init(ctx, traceCfg)
	if err != nil {
		return nil, err
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			a.logger.Warn("trace shutdown failed", slog.String("error", err.Error()))
		}
	}, nil
}

// newScheduler returns a scheduler carrying the session reaper job.
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(a.logger, scheduler.WithTickInterval(schedulerTick))
	err := sched.Add(scheduler.Job{
		Name: "session-reaper",
		Spec: a.cfg.Sessions.ReapSpec,
		Run: func(_ context.Context, now time.Time) error {
			if n := a.sessions.Reap(now); n > 0 {
				a.logger.Debug("sessions reaped", slog.Int("count", n), slog.Int("open", a.sessions.Len()))
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("session reaper: %w", err)
	}
	return sched, nil
}

func runScheduler(ctx context.Context, sched *scheduler.Scheduler) error {
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sched.Stop()
}

// runSource feeds src into the sessions. The source ending is not an error;
// a failing source stops the command.
func (a *app) runSource(ctx context.Context, src source.Source) error {
	ctx = logging.WithSource(ctx, src.Name())
	a.logger.Info("source started", slog.String("source", src.Name()))
	if err := src.Run(ctx, a.ingest); err != nil && ctx.Err() == nil {
		return fmt.Errorf("source %s: %w", src.Name(), err)
	}
	a.logger.Info("source finished", slog.String("source", src.Name()))
	return nil
}
