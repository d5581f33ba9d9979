package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/internal/tui"
	"github.com/rendis/iterview/pkg/schema"
)

type watchOptions struct {
	session string
	logFile string
	color   string
}

func (o *watchOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.session, "session", "", "Follow this correlation id (default: the first run seen)")
	f.StringVar(&o.logFile, "log-file", "", "Write logs here while the viewer owns the terminal")
	f.StringVar(&o.color, "color", "auto", "Color output: auto, always or never")
	f.Bool("reduced-motion", false, "Skip the flowing phase of edge animations")
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	wo := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a run in the terminal",
		Long: `watch ingests events from the configured source and shows the iteration
graph, the current stage and the thinking transcript of one run. Keys: q quit,
h toggle history, s toggle scroll lock. Without a terminal the final graph is
printed once the source ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runWatch(cmd, cfg, wo)
		},
	}
	wo.register(cmd)
	addSourceFlags(cmd)
	return cmd
}

func newDemoCmd(opts *rootOptions) *cobra.Command {
	wo := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Play the deterministic demo run in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			cfg.Source.Kind = sourceDemo
			if wo.session != "" {
				cfg.Source.CorrelationID = wo.session
			}
			return runWatch(cmd, cfg, wo)
		},
	}
	wo.register(cmd)
	addDemoFlags(cmd)
	return cmd
}

func runWatch(cmd *cobra.Command, cfg Config, wo *watchOptions) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	stdout, isFile := cmd.OutOrStdout().(*os.File)
	interactive := isFile && isTerminal(stdout)

	logOut := cmd.ErrOrStderr()
	if interactive {
		logOut = io.Discard
		if wo.logFile != "" {
			f, err := os.OpenFile(wo.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			logOut = f
		}
	}

	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.sessions.CloseAll()

	src, err := newSource(cfg.Source, a.logger)
	if err != nil {
		return err
	}
	if src == nil {
		return schema.NewError(schema.ErrCodeConfig, "watch needs a source; set --source or source.kind")
	}

	if !interactive {
		if err := a.runSource(ctx, src); err != nil {
			return err
		}
		snaps, err := a.finish(ctx, wo.session)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return schema.NewError(schema.ErrCodeNotFound, "source produced no sessions")
		}
		return writeSnapshots(ctx, cmd.OutOrStdout(), snaps, formatASCII, useColor(wo.color, cmd.OutOrStdout()))
	}

	updates, unsubscribe, err := a.hub.Subscribe(ctx, streaming.UpdateFilter{
		CorrelationID: wo.session,
		Types:         []string{streaming.UpdateSnapshot},
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	pin := &pinnedRun{}
	model := tui.New(tui.Config{
		Color: wo.color != "never",
		OnAutoScroll: func(locked bool) {
			corr, ok := pin.get()
			if !ok {
				return
			}
			s, err := a.sessions.Get(corr)
			if err != nil {
				return
			}
			if err := s.SetAutoScrollLocked(ctx, locked); err != nil {
				a.logger.Debug("scroll lock not recorded", slog.String("error", err.Error()))
			}
		},
	}, nil, pin.follow(ctx, updates))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runSource(gctx, src) })
	g.Go(func() error {
		// Quitting the viewer stops the source.
		defer cancel()
		return tui.Run(gctx, model)
	})
	return g.Wait()
}

// pinnedRun forwards the updates of the first run it sees and drops the
// rest.
type pinnedRun struct {
	mu     sync.Mutex
	pinned bool
	corr   string
}

func (p *pinnedRun) get() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.corr, p.pinned
}

func (p *pinnedRun) accept(u streaming.Update) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pinned {
		p.pinned = true
		p.corr = u.CorrelationID
	}
	return u.CorrelationID == p.corr
}

func (p *pinnedRun) follow(ctx context.Context, in <-chan streaming.Update) <-chan streaming.Update {
	out := make(chan streaming.Update, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				if !p.accept(u) {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
