package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/internal/edgeflow"
	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/internal/thinking"
	"github.com/rendis/iterview/pkg/schema"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	s       *Session
	clock   *edgeflow.ManualClock
	metrics *Metrics
}

func newFixture(t *testing.T, hub streaming.UpdateHub) *fixture {
	t.Helper()
	clock := edgeflow.NewManualClock(epoch)
	metrics := NewMetrics(nil)
	s := New(context.Background(), "s-1", "c-1", Config{}, Deps{
		Hub:      hub,
		Metrics:  metrics,
		Logger:   quietLogger(),
		NewClock: func(edgeflow.Dispatcher) edgeflow.Clock { return clock },
		Now:      func() time.Time { return epoch },
	})
	t.Cleanup(s.Close)
	return &fixture{s: s, clock: clock, metrics: metrics}
}

func (f *fixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, f.s.Do(context.Background(), func() { f.clock.Advance(d) }))
}

func progress(seq int64, state schema.PipelineState) schema.Event {
	return schema.NewProgressEvent("c-1", seq, 1, state, "", "")
}

func staged(seq int64, state schema.PipelineState, stage schema.StageTag) schema.Event {
	return schema.NewProgressEvent("c-1", seq, 1, state, "", stage)
}

func stream(seq int64, text string) schema.Event {
	return schema.NewStreamEvent("c-1", seq, text)
}

func TestSession_FullRun(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	for _, ev := range []schema.Event{
		staged(1, schema.StateRunningTests, schema.StagePattern),
		stream(2, "extracting\n"),
		staged(3, schema.StateEvaluating, schema.StageQuality),
		stream(4, "scoring\n"),
		progress(5, schema.StateCompleted),
	} {
		require.NoError(t, f.s.Apply(ctx, ev))
	}

	snap := f.s.Snapshot()
	for _, id := range graph.AllNodes() {
		assert.Equal(t, graph.NodeSuccess, snap.Nodes[id], id.String())
	}
	assert.Equal(t, thinking.StatusComplete, snap.Thinking.Status)
	assert.True(t, snap.Terminal())
	require.Len(t, snap.Thinking.StageHistory, 2)
	assert.Equal(t, schema.StagePattern, snap.Thinking.StageHistory[0].Stage)
	assert.Equal(t, schema.StageQuality, snap.Thinking.StageHistory[1].Stage)
	assert.Equal(t, uint64(5), snap.EventsSeen)
	require.NotNil(t, snap.Pipeline)
	assert.Equal(t, schema.StateCompleted, snap.Pipeline.State)
	assert.Equal(t, "c-1", snap.CorrelationID)
}

func TestSession_StageLabel(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.s.Apply(context.Background(), staged(1, schema.StateGeneratingPrompt, schema.StagePrompt)))

	snap := f.s.Snapshot()
	assert.Equal(t, "Generating candidates", snap.StageLabel)
	assert.Equal(t, 1, snap.Iteration)
}

func TestSession_EdgeDecay(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.s.Apply(context.Background(), progress(1, schema.StateRunningTests)))

	snap := f.s.Snapshot()
	assert.Equal(t, graph.FlowFlowing, snap.Edges[graph.EdgePatternPrompt].State)
	assert.Equal(t, int64(1), snap.Edges[graph.EdgePatternPrompt].LastActivatedSeq)
	assert.Equal(t, graph.DenoiseStrong, snap.Denoise[graph.EdgePatternPrompt])

	f.advance(t, 320*time.Millisecond)
	assert.Equal(t, graph.FlowCooldown, f.s.Snapshot().Edges[graph.EdgePatternPrompt].State)

	f.advance(t, 280*time.Millisecond)
	snap = f.s.Snapshot()
	assert.Equal(t, graph.FlowIdle, snap.Edges[graph.EdgePatternPrompt].State)
	assert.Equal(t, int64(1), snap.Edges[graph.EdgePatternPrompt].LastActivatedSeq)
	assert.Equal(t, graph.DenoiseOff, snap.Denoise[graph.EdgePatternPrompt])
	assert.Zero(t, f.clock.Pending())
}

func TestSession_TerminalEndsFlowingEdges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.s.Apply(ctx, progress(1, schema.StateEvaluating)))
	require.NoError(t, f.s.Apply(ctx, progress(2, schema.StateCompleted)))

	snap := f.s.Snapshot()
	assert.Equal(t, graph.FlowCooldown, snap.Edges[graph.EdgePatternPrompt].State)
	assert.Equal(t, graph.FlowCooldown, snap.Edges[graph.EdgePromptQuality].State)
	assert.Equal(t, graph.FlowIdle, snap.Edges[graph.EdgeQualityReflection].State)

	f.advance(t, 280*time.Millisecond)
	for _, id := range graph.AllEdges() {
		assert.Equal(t, graph.FlowIdle, f.s.Snapshot().Edges[id].State, id.String())
	}
}

func TestSession_PublishesSnapshots(t *testing.T) {
	hub := streaming.NewMemoryHub(streaming.WithLogger(quietLogger()))
	ch, cancel, err := hub.Subscribe(context.Background(), streaming.UpdateFilter{
		SessionID: "s-1",
		Types:     []string{streaming.UpdateSnapshot},
	})
	require.NoError(t, err)
	defer cancel()

	f := newFixture(t, hub)
	require.NoError(t, f.s.Apply(context.Background(), stream(1, "hello")))

	select {
	case u := <-ch:
		assert.Equal(t, streaming.UpdateSnapshot, u.Type)
		snap, ok := u.Payload.(*Snapshot)
		require.True(t, ok)
		assert.Equal(t, "hello", snap.Thinking.Text)
		require.NotNil(t, u.Event)
		assert.Equal(t, int64(1), u.Event.Sequence)
		assert.Equal(t, "streaming", u.Vars["status"])
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}
}

func TestSession_StaleEventsAreCounted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.s.Apply(ctx, stream(1, "a")))
	require.NoError(t, f.s.Apply(ctx, stream(1, "a")))
	require.NoError(t, f.s.Apply(ctx, schema.NewStreamEvent("other", 2, "b")))
	require.NoError(t, f.s.Apply(ctx, stream(4, "c")))

	assert.Equal(t, "ac", f.s.Snapshot().Thinking.Text)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.events.WithLabelValues("stream", outcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.events.WithLabelValues("stream", outcomeStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.events.WithLabelValues("stream", outcomeForeign)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.gaps))
}

func TestSession_AutoScrollAndForceComplete(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.s.Apply(ctx, stream(1, "x")))

	require.NoError(t, f.s.SetAutoScrollLocked(ctx, true))
	assert.True(t, f.s.Snapshot().Thinking.IsAutoScrollLocked)

	require.NoError(t, f.s.ForceComplete(ctx))
	assert.Equal(t, thinking.StatusComplete, f.s.Snapshot().Thinking.Status)
}

func TestSession_Reset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.s.Apply(ctx, progress(1, schema.StateRunningTests)))
	require.NoError(t, f.s.Apply(ctx, stream(2, "x")))

	require.NoError(t, f.s.Reset(ctx))

	snap := f.s.Snapshot()
	assert.Equal(t, graph.InitialNodeStates(), snap.Nodes)
	assert.Equal(t, graph.InitialEdgeFlowStates(), snap.Edges)
	assert.Equal(t, thinking.StatusIdle, snap.Thinking.Status)
	assert.Nil(t, snap.Pipeline)
	assert.Zero(t, f.clock.Pending())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.s.Apply(context.Background(), progress(1, schema.StateRunningTests)))

	f.s.Close()
	f.s.Close()

	<-f.s.Done()
	assert.True(t, f.s.Snapshot().Closed)
	assert.Zero(t, f.clock.Pending())

	err := f.s.Submit(context.Background(), stream(2, "late"))
	assert.True(t, schema.HasCode(err, schema.ErrCodeClosed))
	err = f.s.Flush(context.Background())
	assert.True(t, schema.HasCode(err, schema.ErrCodeClosed))
}

func TestSession_ContextCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, "s-2", "c-2", Config{}, Deps{Logger: quietLogger()})
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.True(t, s.Snapshot().Closed)
	s.Close()
}
