package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/rendis/iterview/pkg/schema"
)

// demoBase is the timestamp of the first demo event. Later events are spaced
// 10ms apart by sequence number.
var demoBase = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

const demoSpacing = 10 * time.Millisecond

// DemoConfig shapes the generated run.
type DemoConfig struct {
	CorrelationID string
	Iterations    int
	Tokens        int
	// Interval paces emission in real time. Zero emits as fast as the sink
	// accepts.
	Interval time.Duration
}

// DemoEvents returns the deterministic demo run. Each iteration reports
// running_tests, evaluating and waiting_user, streams Tokens chunks, then
// ends completed on odd iterations and failed on even ones.
func DemoEvents(correlationID string, iterations, tokens int) ([]schema.Event, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "correlation id is required")
	}
	iterations = max(1, iterations)
	tokens = max(1, tokens)

	out := make([]schema.Event, 0, iterations*(tokens+4))
	var seq int64
	next := func(ev schema.Event) {
		ev.Timestamp = demoBase.Add(time.Duration(seq) * demoSpacing)
		out = append(out, ev)
		seq++
	}

	for it := 1; it <= iterations; it++ {
		next(schema.NewProgressEvent(correlationID, seq, it, schema.StateRunningTests, "running tests", schema.StagePattern))
		next(schema.NewProgressEvent(correlationID, seq, it, schema.StateEvaluating, "evaluating", schema.StageQuality))
		next(schema.NewProgressEvent(correlationID, seq, it, schema.StateWaitingUser, "waiting for user", schema.StageReflection))
		for t := 0; t < tokens; t++ {
			next(schema.NewStreamEvent(correlationID, seq, fmt.Sprintf("iter=%d token=%d", it, t)))
		}
		final, step := schema.StateCompleted, "completed"
		if it%2 == 0 {
			final, step = schema.StateFailed, "failed"
		}
		next(schema.NewProgressEvent(correlationID, seq, it, final, step, ""))
	}
	return out, nil
}

// Demo replays DemoEvents, optionally paced.
type Demo struct {
	cfg    DemoConfig
	events []schema.Event
}

// NewDemo validates cfg and pre-generates the run.
func NewDemo(cfg DemoConfig) (*Demo, error) {
	events, err := DemoEvents(cfg.CorrelationID, cfg.Iterations, cfg.Tokens)
	if err != nil {
		return nil, err
	}
	return &Demo{cfg: cfg, events: events}, nil
}

func (d *Demo) Name() string { return "demo" }

// Events returns the generated run.
func (d *Demo) Events() []schema.Event { return d.events }

// Run emits every demo event.
func (d *Demo) Run(ctx context.Context, emit EmitFunc) error {
	if d.cfg.Interval <= 0 {
		return emitAll(ctx, emit, d.events)
	}

	limiter := rate.NewLimiter(rate.Every(d.cfg.Interval), 1)
	for _, ev := range d.events {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
