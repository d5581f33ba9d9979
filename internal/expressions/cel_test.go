package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/pkg/schema"
)

func newFilterEngine(t *testing.T) *FilterEngine {
	t.Helper()
	e, err := NewFilterEngine()
	require.NoError(t, err)
	return e
}

func TestFilter_MatchEventVars(t *testing.T) {
	e := newFilterEngine(t)
	ctx := context.Background()

	progress := EventVars(schema.NewProgressEvent("c-1", 3, 2, schema.StateEvaluating, "eval", schema.StageQuality))
	stream := EventVars(schema.NewStreamEvent("c-1", 4, "tok"))

	tests := []struct {
		expr     string
		progress bool
		stream   bool
	}{
		{`event.kind == "stream"`, false, true},
		{`event.state in ["evaluating", "failed"]`, true, false},
		{`event.seq > 3`, false, true},
		{`event.stage == "quality" && event.iteration == 2`, true, false},
		{`event.correlation_id == "c-1"`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := e.Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, f.Expression())

			got, err := f.Match(ctx, progress, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.progress, got)

			got, err = f.Match(ctx, stream, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.stream, got)
		})
	}
}

func TestFilter_DynResultMustBeBool(t *testing.T) {
	f, err := newFilterEngine(t).Compile(`event.kind`)
	require.NoError(t, err)

	_, err = f.Match(context.Background(), map[string]any{"kind": "stream"}, nil)
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeEvaluation))
}

func TestFilterEngine_CompileErrors(t *testing.T) {
	e := newFilterEngine(t)

	for _, expr := range []string{"", `event.kind ==`, `unknown_var == 1`, `size(snapshot)`} {
		t.Run(expr, func(t *testing.T) {
			_, err := e.Compile(expr)
			require.Error(t, err)
			assert.True(t, schema.HasCode(err, schema.ErrCodeValidation))
		})
	}
}

func TestFilterEngine_SharesPrograms(t *testing.T) {
	e := newFilterEngine(t)
	a, err := e.Compile(`snapshot.status == "streaming"`)
	require.NoError(t, err)
	b, err := e.Compile(`snapshot.status == "streaming"`)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	n := 0
	e.programs.Range(func(_, _ any) bool { n++; return true })
	assert.Equal(t, 1, n)
}

func TestFilter_MissingVariablesAreEmpty(t *testing.T) {
	f, err := newFilterEngine(t).Compile(`size(snapshot) == 0 && size(event) == 0`)
	require.NoError(t, err)

	got, err := f.Match(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, got)
}
