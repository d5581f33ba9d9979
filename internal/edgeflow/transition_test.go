package edgeflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/iterview/internal/graph"
)

func TestActivateStep_PulseArmsFlowTimer(t *testing.T) {
	o := DefaultOptions()
	st := o.activateStep(graph.EdgeFlow{State: graph.FlowIdle, LastActivatedSeq: graph.NoSeq}, 4, graph.ActivationPulse, false)

	assert.Equal(t, graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: 4}, st.next)
	assert.Equal(t, o.Flowing, st.armFlow)
	assert.Zero(t, st.armIdle)
	assert.True(t, st.cancelFlow)
	assert.True(t, st.cancelIdle)
}

func TestActivateStep_StreamUsesGrace(t *testing.T) {
	o := Options{StreamGrace: 50}.withDefaults()
	st := o.activateStep(graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: 1}, 2, graph.ActivationStream, false)

	assert.Equal(t, graph.FlowFlowing, st.next.State)
	assert.Equal(t, o.StreamGrace, st.armFlow)
}

func TestActivateStep_ReducedMotionSkipsFlowing(t *testing.T) {
	o := DefaultOptions()
	st := o.activateStep(graph.EdgeFlow{State: graph.FlowIdle, LastActivatedSeq: graph.NoSeq}, 9, graph.ActivationPulse, true)

	assert.Equal(t, graph.EdgeFlow{State: graph.FlowCooldown, LastActivatedSeq: 9}, st.next)
	assert.Zero(t, st.armFlow)
	assert.Equal(t, o.Pulse, st.armIdle)
}

func TestExpiredSteps(t *testing.T) {
	o := DefaultOptions()
	cur := graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: 3}

	cool := o.flowExpiredStep(cur)
	assert.Equal(t, graph.EdgeFlow{State: graph.FlowCooldown, LastActivatedSeq: 3}, cool.next)
	assert.Equal(t, o.Cooldown, cool.armIdle)

	idle := idleExpiredStep(cool.next)
	assert.Equal(t, graph.EdgeFlow{State: graph.FlowIdle, LastActivatedSeq: 3}, idle.next)
	assert.Zero(t, idle.armFlow)
	assert.Zero(t, idle.armIdle)
}

func TestEndAllStep(t *testing.T) {
	o := DefaultOptions()

	st, ok := o.endAllStep(graph.EdgeFlow{State: graph.FlowCooldown, LastActivatedSeq: 2})
	assert.True(t, ok)
	assert.Equal(t, graph.FlowCooldown, st.next.State)
	assert.Equal(t, o.Cooldown, st.armIdle)

	st, _ = o.endAllStep(graph.EdgeFlow{State: graph.FlowIdle, LastActivatedSeq: graph.NoSeq})
	assert.Equal(t, graph.FlowIdle, st.next.State)
	assert.Zero(t, st.armIdle)
}
