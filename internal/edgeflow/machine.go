// Package edgeflow animates the iteration graph edges. Each edge moves
// idle -> flowing -> cooldown -> idle, driven by backend events and two
// per-edge decay timers.
package edgeflow

import (
	"time"

	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/pkg/schema"
)

// Options configures decay durations. Zero values take the defaults.
type Options struct {
	Flowing     time.Duration `json:"flowing" yaml:"flowing"`
	Cooldown    time.Duration `json:"cooldown" yaml:"cooldown"`
	Pulse       time.Duration `json:"pulse" yaml:"pulse"`
	StreamGrace time.Duration `json:"stream_grace" yaml:"stream_grace"`
}

// DefaultOptions returns the standard animation timings.
func DefaultOptions() Options {
	return Options{
		Flowing:     320 * time.Millisecond,
		Cooldown:    280 * time.Millisecond,
		Pulse:       220 * time.Millisecond,
		StreamGrace: 220 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Flowing <= 0 {
		o.Flowing = d.Flowing
	}
	if o.Cooldown <= 0 {
		o.Cooldown = d.Cooldown
	}
	if o.Pulse <= 0 {
		o.Pulse = d.Pulse
	}
	if o.StreamGrace <= 0 {
		o.StreamGrace = d.StreamGrace
	}
	return o
}

// ApplyOptions carries per-event presentation preferences.
type ApplyOptions struct {
	PrefersReducedMotion bool
}

type edgeTimers struct {
	flow Timer
	idle Timer
}

// Machine owns the edge flow states and their timers.
//
// A Machine is not safe for concurrent use. All calls, and all Clock
// callbacks, must happen on one goroutine.
type Machine struct {
	clock    Clock
	onChange func(graph.EdgeFlowStates)
	opts     Options

	state    graph.EdgeFlowStates
	timers   [graph.EdgeCount]edgeTimers
	disposed bool
}

// New creates a Machine. onChange receives every distinct snapshot; it may be
// nil.
func New(clock Clock, onChange func(graph.EdgeFlowStates), opts Options) *Machine {
	if onChange == nil {
		onChange = func(graph.EdgeFlowStates) {}
	}
	return &Machine{
		clock:    clock,
		onChange: onChange,
		opts:     opts.withDefaults(),
		state:    graph.InitialEdgeFlowStates(),
	}
}

// Options returns the effective timings.
func (m *Machine) Options() Options { return m.opts }

// State returns the current snapshot.
func (m *Machine) State() graph.EdgeFlowStates { return m.state }

// ApplyEvent maps ev to its edge signal and applies it.
func (m *Machine) ApplyEvent(ev schema.Event, opts ApplyOptions) {
	m.ApplySignal(graph.SignalFor(ev), opts)
}

// ApplySignal applies an already-mapped edge signal.
func (m *Machine) ApplySignal(sig graph.EdgeSignal, opts ApplyOptions) {
	if m.disposed {
		return
	}
	switch sig.Kind {
	case graph.SignalEndAll:
		m.EndAll()
	case graph.SignalActivate:
		for _, id := range sig.Edges {
			m.activate(id, sig.Seq, sig.Activation, opts.PrefersReducedMotion)
		}
	}
}

// EndAll moves flowing edges to cooldown now and restarts the idle countdown
// of edges already cooling down.
func (m *Machine) EndAll() {
	if m.disposed {
		return
	}
	for _, id := range graph.AllEdges() {
		if st, ok := m.opts.endAllStep(m.state[id]); ok {
			m.run(id, st)
		}
	}
}

// Reset cancels every timer, returns all edges to idle and always notifies.
func (m *Machine) Reset() {
	for _, id := range graph.AllEdges() {
		m.clearFlow(id)
		m.clearIdle(id)
	}
	m.state = graph.InitialEdgeFlowStates()
	m.onChange(m.state)
}

// Dispose cancels every timer and keeps the current state. A disposed
// machine ignores further signals.
func (m *Machine) Dispose() {
	for _, id := range graph.AllEdges() {
		m.clearFlow(id)
		m.clearIdle(id)
	}
	m.disposed = true
}

func (m *Machine) activate(id graph.EdgeID, seq int64, kind graph.ActivationKind, reducedMotion bool) {
	m.run(id, m.opts.activateStep(m.state[id], seq, kind, reducedMotion))
}

// run applies a transition decided by the pure step functions: cancel timers,
// emit the new value, then arm timers.
func (m *Machine) run(id graph.EdgeID, st step) {
	if st.cancelFlow {
		m.clearFlow(id)
	}
	if st.cancelIdle {
		m.clearIdle(id)
	}

	next := m.state
	next[id] = st.next
	m.emitIfChanged(next)

	if st.armFlow > 0 {
		m.timers[id].flow = m.clock.AfterFunc(st.armFlow, func() {
			m.timers[id].flow = nil
			m.run(id, m.opts.flowExpiredStep(m.state[id]))
		})
	}
	if st.armIdle > 0 {
		m.timers[id].idle = m.clock.AfterFunc(st.armIdle, func() {
			m.timers[id].idle = nil
			m.run(id, idleExpiredStep(m.state[id]))
		})
	}
}

func (m *Machine) clearFlow(id graph.EdgeID) {
	if t := m.timers[id].flow; t != nil {
		t.Stop()
		m.timers[id].flow = nil
	}
}

func (m *Machine) clearIdle(id graph.EdgeID) {
	if t := m.timers[id].idle; t != nil {
		t.Stop()
		m.timers[id].idle = nil
	}
}

// emitIfChanged stores next and notifies only when some edge's state or
// sequence differs.
func (m *Machine) emitIfChanged(next graph.EdgeFlowStates) {
	if next == m.state {
		return
	}
	m.state = next
	m.onChange(next)
}
