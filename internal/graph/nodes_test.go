package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/pkg/schema"
)

func progress(seq int64, state schema.PipelineState) schema.Event {
	return schema.NewProgressEvent("c-1", seq, 1, state, string(state), "")
}

func stream(seq int64, text string) schema.Event {
	return schema.NewStreamEvent("c-1", seq, text)
}

func TestReduceNodes_ProgressTable(t *testing.T) {
	tests := []struct {
		state schema.PipelineState
		want  NodeStates
	}{
		{schema.StateRunningTests, NodeStates{NodeRunning, NodeIdle, NodeIdle, NodeIdle}},
		{schema.StateEvaluating, NodeStates{NodeSuccess, NodeRunning, NodeRunning, NodeIdle}},
		{schema.StateWaitingUser, NodeStates{NodeSuccess, NodeSuccess, NodeSuccess, NodePaused}},
		{schema.StateHumanIntervention, NodeStates{NodeSuccess, NodeSuccess, NodeSuccess, NodePaused}},
		{schema.StateFailed, NodeStates{NodeSuccess, NodeSuccess, NodeSuccess, NodeError}},
		{schema.StateCompleted, NodeStates{NodeSuccess, NodeSuccess, NodeSuccess, NodeSuccess}},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			prev := NodeStates{NodeError, NodeError, NodeError, NodeRunning}
			assert.Equal(t, tt.want, ReduceNodes(prev, progress(1, tt.state)))
		})
	}
}

func TestReduceNodes_UnmappedStateIsNoop(t *testing.T) {
	prev := NodeStates{NodeRunning, NodeIdle, NodeIdle, NodePaused}
	for _, st := range []schema.PipelineState{schema.StateExtractingRules, schema.StateGeneratingPrompt, schema.StateReflecting, "unknown"} {
		assert.Equal(t, prev, ReduceNodes(prev, progress(3, st)), st)
	}
}

func TestReduceNodes_StreamMarksReflectionRunning(t *testing.T) {
	prev := NodeStates{NodeSuccess, NodeRunning, NodeRunning, NodeIdle}
	got := ReduceNodes(prev, stream(4, "x"))
	assert.Equal(t, NodeStates{NodeSuccess, NodeRunning, NodeRunning, NodeRunning}, got)
	assert.Equal(t, NodeIdle, prev[ReflectionAgent], "input must not be mutated")
}

func TestReduceNodes_UnknownKindIsNoop(t *testing.T) {
	prev := InitialNodeStates()
	assert.Equal(t, prev, ReduceNodes(prev, schema.Event{Kind: "heartbeat", Sequence: 9}))
	assert.Equal(t, prev, ReduceNodes(prev, schema.Event{Kind: schema.KindProgress, Sequence: 9}))
}

func TestReduceNodes_FullRunEndsAllSuccess(t *testing.T) {
	events := []schema.Event{
		progress(0, schema.StateRunningTests),
		progress(1, schema.StateEvaluating),
		stream(2, "a"),
		progress(3, schema.StateCompleted),
	}
	s := InitialNodeStates()
	for _, ev := range events {
		s = ReduceNodes(s, ev)
	}
	assert.Equal(t, NodeStates{NodeSuccess, NodeSuccess, NodeSuccess, NodeSuccess}, s)
}

func TestReduceNodes_LastWriteWins(t *testing.T) {
	s := ReduceNodes(InitialNodeStates(), progress(5, schema.StateCompleted))
	s = ReduceNodes(s, progress(2, schema.StateRunningTests))
	assert.Equal(t, NodeStates{NodeRunning, NodeIdle, NodeIdle, NodeIdle}, s)
}

func TestNodeStatesJSON(t *testing.T) {
	s := NodeStates{NodeSuccess, NodeRunning, NodeIdle, NodePaused}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pattern_extractor":"success","prompt_engineer":"running","quality_assessor":"idle","reflection_agent":"paused"}`, string(data))

	var back NodeStates
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}
