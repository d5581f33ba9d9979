package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Getenv).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	getenv     func(string) string
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := &rootOptions{getenv: getenv}

	root := &cobra.Command{
		Use:   "iterview",
		Short: "Live view of prompt-optimization runs",
		Long: `iterview turns the progress and stream events of a prompt-optimization
backend into a live view: a four-node iteration graph with animated edges,
the current stage and a bounded thinking transcript with stage history.

Settings are read from ~/.iterview/settings.yaml, then ITERVIEW_* env vars,
then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", settingsPath(), "Settings file")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "", "Log format: auto, text or json")

	root.AddCommand(
		newServeCmd(opts),
		newMCPCmd(opts),
		newWatchCmd(opts),
		newDemoCmd(opts),
		newReplayCmd(opts),
		newRenderCmd(opts),
		newStagesCmd(),
		newVersionCmd(),
	)
	return root
}

// load resolves the configuration for cmd: settings file, env vars, then the
// flags the user set explicitly.
func (o *rootOptions) load(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(o.configPath, o.getenv)
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags into cfg. Flags a command does not
// define are never reported as changed.
func applyFlags(cmd *cobra.Command, cfg *Config) error {
	f := cmd.Flags()
	var err error
	str := func(name string, dst *string) {
		if err == nil && f.Changed(name) {
			*dst, err = f.GetString(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil && f.Changed(name) {
			*dst, err = f.GetInt(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && f.Changed(name) {
			*dst, err = f.GetBool(name)
		}
	}

	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("listen", &cfg.ListenAddr)
	boolean("reduced-motion", &cfg.ReducedMotion)
	str("source", &cfg.Source.Kind)
	str("url", &cfg.Source.URL)
	str("path", &cfg.Source.Path)
	boolean("follow", &cfg.Source.Follow)
	str("mapping", &cfg.Source.Mapping)
	str("correlation-id", &cfg.Source.CorrelationID)
	integer("iterations", &cfg.Source.Iterations)
	integer("tokens", &cfg.Source.Tokens)
	str("trace", &cfg.Trace.Exporter)
	if err == nil && f.Changed("interval") {
		cfg.Source.Interval, err = f.GetDuration("interval")
	}
	if err == nil && f.Changed("min-interval") {
		cfg.Panel.MinInterval, err = f.GetDuration("min-interval")
	}
	return err
}

// addSourceFlags registers the flags selecting an event source.
func addSourceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("source", "", "Event source: none, websocket, file or demo")
	f.String("url", "", "Backend WebSocket URL (source websocket)")
	f.String("path", "", "Recorded JSONL file (source file)")
	f.Bool("follow", false, "Keep reading the file as it grows")
	f.String("mapping", "", "jq program mapping foreign messages to envelopes")
	addDemoFlags(cmd)
}

func addDemoFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("correlation-id", "", "Demo correlation id (default: generated)")
	f.Int("iterations", 0, "Demo iterations")
	f.Int("tokens", 0, "Demo stream tokens per iteration")
	f.Duration("interval", 0, "Demo pacing between events")
}
