package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rendis/iterview/internal/diagram"
	"github.com/rendis/iterview/internal/session"
	"github.com/rendis/iterview/pkg/schema"
)

// Output formats of replay and render.
const (
	formatJSON    = "json"
	formatASCII   = "ascii"
	formatMermaid = "mermaid"
	formatPNG     = "png"
)

type outputOptions struct {
	format  string
	out     string
	color   string
	session string
}

func (o *outputOptions) register(cmd *cobra.Command, defaultFormat string) {
	f := cmd.Flags()
	f.StringVar(&o.format, "format", defaultFormat, "Output format: json, ascii, mermaid or png")
	f.StringVarP(&o.out, "out", "o", "", "Write output to a file instead of stdout")
	f.StringVar(&o.color, "color", "auto", "Color ASCII output: auto, always or never")
	f.StringVar(&o.session, "session", "", "Only output this session or correlation id")
	f.String("mapping", "", "jq program mapping foreign messages to envelopes")
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	out := &outputOptions{}
	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Feed a recorded run through a session and print the final state",
		Long: `replay reads one envelope per line, applies them to fresh sessions, marks
any still-streaming transcript complete and prints the final snapshot of
every session found in the file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runReplay(cmd, cfg, args[0], out)
		},
	}
	out.register(cmd, formatJSON)
	return cmd
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	out := &outputOptions{}
	cmd := &cobra.Command{
		Use:   "render <events.jsonl>",
		Short: "Render the iteration graph of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runReplay(cmd, cfg, args[0], out)
		},
	}
	out.register(cmd, formatASCII)
	return cmd
}

func runReplay(cmd *cobra.Command, cfg Config, path string, out *outputOptions) error {
	ctx := cmd.Context()
	switch out.format {
	case formatJSON, formatASCII, formatMermaid, formatPNG:
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q", out.format)
	}

	cfg.Source = SourceConfig{Kind: sourceFile, Path: path, Mapping: cfg.Source.Mapping}
	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.sessions.CloseAll()

	src, err := newSource(cfg.Source, a.logger)
	if err != nil {
		return err
	}
	if err := src.Run(ctx, a.ingest); err != nil {
		return err
	}

	snaps, err := a.finish(ctx, out.session)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no sessions in %s", path)
	}

	w := cmd.OutOrStdout()
	if out.out != "" {
		f, err := os.Create(out.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return writeSnapshots(ctx, w, snaps, out.format, useColor(out.color, w))
}

// finish waits for every queued event, completes any open transcript and
// returns the final snapshots in session order. A non-empty key keeps only
// that session.
func (a *app) finish(ctx context.Context, key string) ([]*session.Snapshot, error) {
	var out []*session.Snapshot
	for _, info := range a.sessions.List() {
		if key != "" && key != info.SessionID && key != info.CorrelationID {
			continue
		}
		s, err := a.sessions.Get(info.SessionID)
		if err != nil {
			return nil, err
		}
		if err := s.Flush(ctx); err != nil {
			return nil, err
		}
		if err := s.ForceComplete(ctx); err != nil {
			return nil, err
		}
		out = append(out, s.Snapshot())
	}
	return out, nil
}

func writeSnapshots(ctx context.Context, w io.Writer, snaps []*session.Snapshot, format string, color bool) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(snaps) == 1 {
			return enc.Encode(snaps[0])
		}
		return enc.Encode(snaps)

	case formatPNG:
		if len(snaps) != 1 {
			return schema.NewErrorf(schema.ErrCodeConflict,
				"png output needs exactly one session, found %d; pick one with --session", len(snaps))
		}
		img, err := diagram.RenderImage(ctx, diagram.Build(snaps[0]))
		if err != nil {
			return err
		}
		_, err = w.Write(img)
		return err
	}

	parts := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		model := diagram.Build(snap)
		if format == formatMermaid {
			parts = append(parts, diagram.RenderMermaid(model))
		} else {
			parts = append(parts, diagram.RenderASCIIWith(model, diagram.ASCIIOptions{Color: color}))
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, "\n"))
	return err
}

// useColor resolves a --color mode for w. auto colors only terminals.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
