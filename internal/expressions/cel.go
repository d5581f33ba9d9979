// Package expressions holds the three user-programmable hooks of the viewer:
// CEL filters on the update stream, jq mappings for foreign producers and
// expr summaries for archived stages.
package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rendis/iterview/pkg/schema"
)

// FilterEngine compiles subscriber filters. Filters see two variables:
//   - event:    EventVars of the event behind the update (empty if none)
//   - snapshot: the session summary published with the update
type FilterEngine struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

// NewFilterEngine builds the CEL environment.
func NewFilterEngine() (*FilterEngine, error) {
	vars := cel.MapType(cel.StringType, cel.DynType)
	env, err := cel.NewEnv(
		cel.Variable("event", vars),
		cel.Variable("snapshot", vars),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &FilterEngine{env: env}, nil
}

// Filter is a compiled boolean CEL expression.
type Filter struct {
	expression string
	prg        cel.Program
}

// Compile type-checks expression. Expressions whose static type is neither
// bool nor dyn are rejected here; dyn results are checked on every Match.
// Programs are shared between filters with the same text.
func (e *FilterEngine) Compile(expression string) (*Filter, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty filter expression")
	}
	if prg, ok := e.programs.Load(expression); ok {
		return &Filter{expression: expression, prg: prg.(cel.Program)}, nil
	}

	ast, iss := e.env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, filterError(schema.ErrCodeValidation, expression, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"filter %q has type %s, want bool", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, filterError(schema.ErrCodeValidation, expression, err)
	}

	actual, _ := e.programs.LoadOrStore(expression, prg)
	return &Filter{expression: expression, prg: actual.(cel.Program)}, nil
}

// Expression returns the source text.
func (f *Filter) Expression() string { return f.expression }

// Match evaluates the filter. A nil map is bound as an empty one.
func (f *Filter) Match(ctx context.Context, event, snapshot map[string]any) (bool, error) {
	if event == nil {
		event = map[string]any{}
	}
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	out, _, err := f.prg.ContextEval(ctx, map[string]any{"event": event, "snapshot": snapshot})
	if err != nil {
		return false, filterError(schema.ErrCodeEvaluation, f.expression, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeEvaluation,
			"filter %q returned %T, want bool", f.expression, out.Value()).
			WithDetails(map[string]any{"expression": f.expression})
	}
	return b, nil
}

func filterError(code, expression string, err error) *schema.ViewError {
	return schema.NewErrorf(code, "CEL filter %q: %s", expression, err).
		WithCause(err).
		WithDetails(map[string]any{"expression": expression})
}

// EventVars flattens an event into the map exposed to filters as `event`.
// Every key is present for every kind so filters never hit a missing key.
func EventVars(ev schema.Event) map[string]any {
	m := map[string]any{
		"kind":           string(ev.Kind),
		"seq":            ev.Sequence,
		"correlation_id": ev.CorrelationID,
		"state":          "",
		"stage":          "",
		"step":           "",
		"iteration":      int64(0),
		"content":        "",
	}
	if ev.IsProgress() {
		m["state"] = string(ev.Progress.State)
		m["stage"] = string(ev.Progress.Stage)
		m["step"] = ev.Progress.Step
		m["iteration"] = int64(ev.Progress.Iteration)
	}
	if ev.IsStream() {
		m["content"] = ev.Stream.Content
	}
	return m
}
