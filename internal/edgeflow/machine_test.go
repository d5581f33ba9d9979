package edgeflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/pkg/schema"
)

var epoch = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

type recorder struct {
	snapshots []graph.EdgeFlowStates
}

func (r *recorder) onChange(s graph.EdgeFlowStates) { r.snapshots = append(r.snapshots, s) }

func newTestMachine(t *testing.T) (*Machine, *ManualClock, *recorder) {
	t.Helper()
	clock := NewManualClock(epoch)
	rec := &recorder{}
	return New(clock, rec.onChange, Options{}), clock, rec
}

func progress(seq int64, state schema.PipelineState) schema.Event {
	return schema.NewProgressEvent("c-1", seq, 1, state, "", "")
}

func stream(seq int64) schema.Event {
	return schema.NewStreamEvent("c-1", seq, "tok")
}

func TestDefaultOptions(t *testing.T) {
	m, _, _ := newTestMachine(t)
	assert.Equal(t, DefaultOptions(), m.Options())
	assert.Equal(t, 320*time.Millisecond, m.Options().Flowing)
	assert.Equal(t, 280*time.Millisecond, m.Options().Cooldown)
	assert.Equal(t, 220*time.Millisecond, m.Options().Pulse)
	assert.Equal(t, 220*time.Millisecond, m.Options().StreamGrace)
}

func TestPulseLifecycle(t *testing.T) {
	m, clock, rec := newTestMachine(t)

	m.ApplyEvent(progress(0, schema.StateRunningTests), ApplyOptions{})
	assert.Equal(t, graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: 0}, m.State()[graph.EdgePatternPrompt])
	require.Len(t, rec.snapshots, 1)

	clock.Advance(319 * time.Millisecond)
	assert.Equal(t, graph.FlowFlowing, m.State()[graph.EdgePatternPrompt].State)

	clock.Advance(time.Millisecond)
	assert.Equal(t, graph.FlowCooldown, m.State()[graph.EdgePatternPrompt].State)

	clock.Advance(279 * time.Millisecond)
	assert.Equal(t, graph.FlowCooldown, m.State()[graph.EdgePatternPrompt].State)

	clock.Advance(time.Millisecond)
	assert.Equal(t, graph.FlowIdle, m.State()[graph.EdgePatternPrompt].State)
	assert.Equal(t, int64(0), m.State()[graph.EdgePatternPrompt].LastActivatedSeq)
	assert.Len(t, rec.snapshots, 3)
	assert.Equal(t, 0, clock.Pending())
}

func TestEvaluatingActivatesTwoEdges(t *testing.T) {
	m, _, rec := newTestMachine(t)

	m.ApplyEvent(progress(4, schema.StateEvaluating), ApplyOptions{})
	s := m.State()
	assert.Equal(t, graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: 4}, s[graph.EdgePatternPrompt])
	assert.Equal(t, graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: 4}, s[graph.EdgePromptQuality])
	assert.Equal(t, graph.FlowIdle, s[graph.EdgeQualityReflection].State)
	assert.Len(t, rec.snapshots, 2)
}

func TestStreamGraceIsRearmed(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.ApplyEvent(stream(1), ApplyOptions{})
	clock.Advance(200 * time.Millisecond)
	m.ApplyEvent(stream(2), ApplyOptions{})
	clock.Advance(200 * time.Millisecond)

	edge := m.State()[graph.EdgeQualityReflection]
	assert.Equal(t, graph.FlowFlowing, edge.State)
	assert.Equal(t, int64(2), edge.LastActivatedSeq)

	clock.Advance(20 * time.Millisecond)
	assert.Equal(t, graph.FlowCooldown, m.State()[graph.EdgeQualityReflection].State)
}

func TestReactivationRefreshesSeqOnly(t *testing.T) {
	m, _, rec := newTestMachine(t)

	m.ApplyEvent(progress(1, schema.StateRunningTests), ApplyOptions{})
	m.ApplyEvent(progress(2, schema.StateRunningTests), ApplyOptions{})
	assert.Equal(t, graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: 2}, m.State()[graph.EdgePatternPrompt])
	assert.Len(t, rec.snapshots, 2)

	m.ApplyEvent(progress(2, schema.StateRunningTests), ApplyOptions{})
	assert.Len(t, rec.snapshots, 2, "identical snapshot must not notify")
}

func TestActivationDuringCooldownReturnsToFlowing(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.ApplyEvent(progress(1, schema.StateRunningTests), ApplyOptions{})
	clock.Advance(400 * time.Millisecond)
	require.Equal(t, graph.FlowCooldown, m.State()[graph.EdgePatternPrompt].State)

	m.ApplyEvent(progress(2, schema.StateRunningTests), ApplyOptions{})
	assert.Equal(t, graph.FlowFlowing, m.State()[graph.EdgePatternPrompt].State)

	// The old idle timer was cancelled.
	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, graph.FlowFlowing, m.State()[graph.EdgePatternPrompt].State)
}

func TestReducedMotionSkipsFlowing(t *testing.T) {
	m, clock, rec := newTestMachine(t)

	m.ApplyEvent(progress(3, schema.StateRunningTests), ApplyOptions{PrefersReducedMotion: true})
	assert.Equal(t, graph.EdgeFlow{State: graph.FlowCooldown, LastActivatedSeq: 3}, m.State()[graph.EdgePatternPrompt])

	clock.Advance(219 * time.Millisecond)
	assert.Equal(t, graph.FlowCooldown, m.State()[graph.EdgePatternPrompt].State)
	clock.Advance(time.Millisecond)
	assert.Equal(t, graph.FlowIdle, m.State()[graph.EdgePatternPrompt].State)

	for _, s := range rec.snapshots {
		assert.NotEqual(t, graph.FlowFlowing, s[graph.EdgePatternPrompt].State)
	}
}

func TestEndAll(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.ApplyEvent(progress(1, schema.StateRunningTests), ApplyOptions{})
	clock.Advance(400 * time.Millisecond) // edge 0 in cooldown, 200ms left
	m.ApplyEvent(stream(2), ApplyOptions{})

	m.ApplyEvent(progress(3, schema.StateCompleted), ApplyOptions{})
	s := m.State()
	assert.Equal(t, graph.FlowCooldown, s[graph.EdgePatternPrompt].State)
	assert.Equal(t, graph.FlowCooldown, s[graph.EdgeQualityReflection].State)
	assert.Equal(t, graph.FlowIdle, s[graph.EdgePromptQuality].State)

	// Edge 0's idle countdown restarted at the full cooldown.
	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, graph.FlowCooldown, m.State()[graph.EdgePatternPrompt].State)

	clock.Advance(30 * time.Millisecond)
	s = m.State()
	for _, id := range graph.AllEdges() {
		assert.Equal(t, graph.FlowIdle, s[id].State, id.String())
	}
	assert.Equal(t, 0, clock.Pending())
}

func TestIndependentDecay(t *testing.T) {
	m, clock, _ := newTestMachine(t)

	m.ApplyEvent(progress(1, schema.StateRunningTests), ApplyOptions{})
	clock.Advance(200 * time.Millisecond)
	m.ApplyEvent(stream(2), ApplyOptions{})

	clock.Advance(120 * time.Millisecond) // t=320
	s := m.State()
	assert.Equal(t, graph.FlowCooldown, s[graph.EdgePatternPrompt].State)
	assert.Equal(t, graph.FlowFlowing, s[graph.EdgeQualityReflection].State)

	clock.Advance(100 * time.Millisecond) // t=420
	s = m.State()
	assert.Equal(t, graph.FlowCooldown, s[graph.EdgePatternPrompt].State)
	assert.Equal(t, graph.FlowCooldown, s[graph.EdgeQualityReflection].State)

	clock.Advance(180 * time.Millisecond) // t=600
	s = m.State()
	assert.Equal(t, graph.FlowIdle, s[graph.EdgePatternPrompt].State)
	assert.Equal(t, graph.FlowCooldown, s[graph.EdgeQualityReflection].State)
}

func TestResetAlwaysNotifies(t *testing.T) {
	m, clock, rec := newTestMachine(t)

	m.Reset()
	require.Len(t, rec.snapshots, 1)
	assert.Equal(t, graph.InitialEdgeFlowStates(), rec.snapshots[0])

	m.ApplyEvent(progress(1, schema.StateEvaluating), ApplyOptions{})
	m.Reset()
	assert.Equal(t, graph.InitialEdgeFlowStates(), m.State())
	assert.Equal(t, 0, clock.Pending())
}

func TestDisposeStopsCallbacks(t *testing.T) {
	m, clock, rec := newTestMachine(t)

	m.ApplyEvent(stream(1), ApplyOptions{})
	before := m.State()
	n := len(rec.snapshots)

	m.Dispose()
	clock.Advance(5 * time.Second)
	m.ApplyEvent(progress(2, schema.StateRunningTests), ApplyOptions{})

	assert.Equal(t, before, m.State())
	assert.Len(t, rec.snapshots, n)
	assert.Equal(t, 0, clock.Pending())
}

func TestNoneSignalIsIgnored(t *testing.T) {
	m, clock, rec := newTestMachine(t)
	m.ApplyEvent(progress(1, schema.StateReflecting), ApplyOptions{})
	m.ApplyEvent(schema.Event{Kind: "noise", Sequence: 2}, ApplyOptions{})
	assert.Empty(t, rec.snapshots)
	assert.Equal(t, 0, clock.Pending())
}
