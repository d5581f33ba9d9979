package edgeflow

import (
	"time"

	"github.com/rendis/iterview/internal/graph"
)

// step is the pure outcome of one edge transition: the next edge value and
// which timers the scheduling shell must cancel or arm. A zero duration
// means "do not arm".
type step struct {
	next       graph.EdgeFlow
	cancelFlow bool
	cancelIdle bool
	armFlow    time.Duration
	armIdle    time.Duration
}

// activateStep decides the transition for an activation signal.
func (o Options) activateStep(cur graph.EdgeFlow, seq int64, kind graph.ActivationKind, reducedMotion bool) step {
	if reducedMotion {
		return step{
			next:       graph.EdgeFlow{State: graph.FlowCooldown, LastActivatedSeq: seq},
			cancelFlow: true,
			cancelIdle: true,
			armIdle:    o.Pulse,
		}
	}

	next := graph.EdgeFlow{State: graph.FlowFlowing, LastActivatedSeq: seq}
	delay := o.Flowing
	if kind == graph.ActivationStream {
		delay = o.StreamGrace
	}
	return step{next: next, cancelFlow: true, cancelIdle: true, armFlow: delay}
}

// flowExpiredStep decides the transition when the flow-decay timer fires.
func (o Options) flowExpiredStep(cur graph.EdgeFlow) step {
	cur.State = graph.FlowCooldown
	return step{next: cur, cancelFlow: true, cancelIdle: true, armIdle: o.Cooldown}
}

// idleExpiredStep decides the transition when the idle-decay timer fires.
func idleExpiredStep(cur graph.EdgeFlow) step {
	cur.State = graph.FlowIdle
	return step{next: cur}
}

// endAllStep decides the transition for an end-all signal. Idle edges are
// left alone.
func (o Options) endAllStep(cur graph.EdgeFlow) (step, bool) {
	switch cur.State {
	case graph.FlowFlowing:
		return o.flowExpiredStep(cur), true
	case graph.FlowCooldown:
		return step{next: cur, cancelFlow: true, cancelIdle: true, armIdle: o.Cooldown}, true
	default:
		return step{next: cur, cancelFlow: true}, true
	}
}
