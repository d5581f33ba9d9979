package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rendis/iterview/internal/edgeflow"
	"github.com/rendis/iterview/internal/telemetry"
	"github.com/rendis/iterview/internal/thinking"
	"github.com/rendis/iterview/pkg/schema"
)

// Source kinds.
const (
	sourceNone      = "none"
	sourceWebSocket = "websocket"
	sourceFile      = "file"
	sourceDemo      = "demo"
)

// Config holds all iterview configuration.
// Priority: flags > env vars > settings.yaml > defaults.
type Config struct {
	ListenAddr    string           `yaml:"listen_addr" validate:"required"`
	LogLevel      string           `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat     string           `yaml:"log_format" validate:"oneof=auto text json"`
	ReducedMotion bool             `yaml:"reduced_motion"`
	Edge          edgeflow.Options `yaml:"edge"`
	Text          TextConfig       `yaml:"text"`
	Sessions      SessionsConfig   `yaml:"sessions"`
	Panel         PanelConfig      `yaml:"panel"`
	Source        SourceConfig     `yaml:"source"`
	Trace         telemetry.Config `yaml:"trace"`
}

// TextConfig bounds the thinking transcript.
type TextConfig struct {
	MaxChars int `yaml:"max_chars" validate:"gte=0"`
	MaxLines int `yaml:"max_lines" validate:"gte=0"`
	// SummaryExpr is an expr-lang expression producing the archived stage
	// summary. Empty keeps the first non-blank line.
	SummaryExpr string `yaml:"summary_expr"`
}

// SessionsConfig controls session lifetime.
type SessionsConfig struct {
	Retention   time.Duration `yaml:"retention" validate:"gte=0"`
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	MaxSessions int           `yaml:"max_sessions" validate:"gte=0"`
	ReapSpec    string        `yaml:"reap_spec" validate:"required"`
}

// PanelConfig tunes the viewer streams.
type PanelConfig struct {
	MinInterval time.Duration `yaml:"min_interval" validate:"gte=0"`
}

// SourceConfig selects where events come from.
type SourceConfig struct {
	Kind    string `yaml:"kind" validate:"oneof=none websocket file demo"`
	URL     string `yaml:"url" validate:"required_if=Kind websocket,omitempty,url"`
	Path    string `yaml:"path" validate:"required_if=Kind file"`
	Follow  bool   `yaml:"follow"`
	Mapping string `yaml:"mapping"`
	// Demo feed shape.
	CorrelationID string        `yaml:"correlation_id"`
	Iterations    int           `yaml:"iterations" validate:"gte=0"`
	Tokens        int           `yaml:"tokens" validate:"gte=0"`
	Interval      time.Duration `yaml:"interval" validate:"gte=0"`
}

var configValidate = validator.New(validator.WithRequiredStructEnabled())

func defaultConfig() Config {
	return Config{
		ListenAddr: ":4200",
		LogLevel:   "info",
		LogFormat:  "auto",
		Edge:       edgeflow.DefaultOptions(),
		Text: TextConfig{
			MaxChars: thinking.DefaultMaxChars,
			MaxLines: thinking.DefaultMaxLines,
		},
		Sessions: SessionsConfig{
			Retention:   10 * time.Minute,
			IdleTimeout: time.Hour,
			ReapSpec:    "@every 1m",
		},
		Panel: PanelConfig{
			MinInterval: 50 * time.Millisecond,
		},
		Source: SourceConfig{
			Kind:       sourceNone,
			Iterations: 3,
			Tokens:     5,
			Interval:   150 * time.Millisecond,
		},
		Trace: telemetry.Config{
			Exporter:    telemetry.ExporterNone,
			ServiceName: "iterview",
		},
	}
}

func iterviewDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".iterview"
	}
	return filepath.Join(home, ".iterview")
}

func settingsPath() string {
	return filepath.Join(iterviewDir(), "settings.yaml")
}

// loadConfig layers defaults, the settings file at path and ITERVIEW_* env
// vars. A missing settings file is not an error; a malformed one is.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	// Layer 2: settings.yaml.
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, schema.NewErrorf(schema.ErrCodeConfig, "parse %s: %v", path, err).WithCause(err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, schema.NewErrorf(schema.ErrCodeConfig, "read %s: %v", path, err).WithCause(err)
	}

	// Layer 3: env vars override.
	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	str("ITERVIEW_LISTEN_ADDR", &cfg.ListenAddr)
	str("ITERVIEW_LOG_LEVEL", &cfg.LogLevel)
	str("ITERVIEW_LOG_FORMAT", &cfg.LogFormat)
	boolean("ITERVIEW_REDUCED_MOTION", &cfg.ReducedMotion)
	duration("ITERVIEW_EDGE_FLOWING", &cfg.Edge.Flowing)
	duration("ITERVIEW_EDGE_COOLDOWN", &cfg.Edge.Cooldown)
	integer("ITERVIEW_MAX_CHARS", &cfg.Text.MaxChars)
	integer("ITERVIEW_MAX_LINES", &cfg.Text.MaxLines)
	str("ITERVIEW_SUMMARY_EXPR", &cfg.Text.SummaryExpr)
	duration("ITERVIEW_RETENTION", &cfg.Sessions.Retention)
	duration("ITERVIEW_IDLE_TIMEOUT", &cfg.Sessions.IdleTimeout)
	integer("ITERVIEW_MAX_SESSIONS", &cfg.Sessions.MaxSessions)
	str("ITERVIEW_REAP_SPEC", &cfg.Sessions.ReapSpec)
	duration("ITERVIEW_MIN_INTERVAL", &cfg.Panel.MinInterval)
	str("ITERVIEW_SOURCE", &cfg.Source.Kind)
	str("ITERVIEW_SOURCE_URL", &cfg.Source.URL)
	str("ITERVIEW_SOURCE_PATH", &cfg.Source.Path)
	boolean("ITERVIEW_SOURCE_FOLLOW", &cfg.Source.Follow)
	str("ITERVIEW_SOURCE_MAPPING", &cfg.Source.Mapping)
	str("ITERVIEW_TRACE_EXPORTER", &cfg.Trace.Exporter)

	if len(errs) > 0 {
		return schema.NewError(schema.ErrCodeConfig, "invalid environment").WithCause(errors.Join(errs...))
	}
	return nil
}

// Validate checks cfg and reports every failing field.
func (c *Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return schema.NewError(schema.ErrCodeConfig, err.Error()).WithCause(err)
	}

	var issues schema.Issues
	for _, fe := range fieldErrs {
		issues.Reject(configPath(fe.Namespace()), fe.Tag(),
			fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return issues.Err(schema.ErrCodeConfig)
}

// configPath turns "Config.Source.URL" into "source.url".
func configPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged      bool
	ReducedMotionChanged bool
	PanelChanged         bool
	RestartNeeded        []string // fields that require a restart
}

func (d configDiff) empty() bool {
	return !d.LogLevelChanged && !d.ReducedMotionChanged && !d.PanelChanged && len(d.RestartNeeded) == 0
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.ReducedMotion != new.ReducedMotion {
		d.ReducedMotionChanged = true
	}
	if old.Panel != new.Panel {
		d.PanelChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	if old.Edge != new.Edge {
		d.RestartNeeded = append(d.RestartNeeded, "edge")
	}
	if old.Text != new.Text {
		d.RestartNeeded = append(d.RestartNeeded, "text")
	}
	if old.Sessions != new.Sessions {
		d.RestartNeeded = append(d.RestartNeeded, "sessions")
	}
	if old.Source != new.Source {
		d.RestartNeeded = append(d.RestartNeeded, "source")
	}
	if old.Trace.Exporter != new.Trace.Exporter || old.Trace.ServiceName != new.Trace.ServiceName {
		d.RestartNeeded = append(d.RestartNeeded, "trace")
	}
	return d
}
