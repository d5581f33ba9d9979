// Package session binds the node reducer, the edge-flow machine and the
// thinking reducer for one correlation scope onto a single event loop and
// publishes every visible change as a snapshot.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rendis/iterview/internal/edgeflow"
	"github.com/rendis/iterview/internal/graph"
	"github.com/rendis/iterview/internal/logging"
	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/internal/thinking"
	"github.com/rendis/iterview/pkg/schema"
)

const defaultInboxSize = 256

// Config tunes the reducers owned by a session.
type Config struct {
	Edge      edgeflow.Options
	MaxChars  int
	MaxLines  int
	Summarize thinking.Summarizer
	// ReducedMotion is sampled at each edge activation.
	ReducedMotion func() bool
	InboxSize     int
}

// Deps holds the collaborators of a session.
type Deps struct {
	Hub     streaming.UpdateHub
	Metrics *Metrics
	Logger  *slog.Logger
	Tracer  trace.Tracer
	// NewClock builds the edge timer clock. The default delivers timer
	// callbacks through the session loop.
	NewClock func(dispatch edgeflow.Dispatcher) edgeflow.Clock
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("iterview/session")
	}
	if d.NewClock == nil {
		d.NewClock = func(dispatch edgeflow.Dispatcher) edgeflow.Clock {
			return edgeflow.NewLoopClock(dispatch)
		}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Session is the live visualization state of one run.
//
// All state below the loop marker is owned by the loop goroutine. Other
// goroutines read the latest published Snapshot or post work with Do.
type Session struct {
	id            string
	correlationID string
	cfg           Config
	deps          Deps
	logger        *slog.Logger
	ctx           context.Context

	inbox     chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	snap      atomic.Pointer[Snapshot]

	// loop
	clock     edgeflow.Clock
	machine   *edgeflow.Machine
	nodes     graph.NodeStates
	edges     graph.EdgeFlowStates
	thinking  *thinking.State
	thinkOpts thinking.Options
	pipeline  *schema.StageDescriptor
	iteration int
	events    uint64
	createdAt time.Time
	applying  bool
	dirty     bool
	closed    bool
}

// New starts a session for correlationID. The loop stops when ctx is done or
// Close is called.
func New(ctx context.Context, id, correlationID string, cfg Config, deps Deps) *Session {
	deps = deps.withDefaults()
	if cfg.ReducedMotion == nil {
		cfg.ReducedMotion = func() bool { return false }
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}

	ctx = logging.WithIDs(ctx, correlationID, id)
	s := &Session{
		id:            id,
		correlationID: correlationID,
		cfg:           cfg,
		deps:          deps,
		logger:        logging.LogWith(ctx, deps.Logger),
		ctx:           ctx,
		inbox:         make(chan func(), cfg.InboxSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		nodes:         graph.InitialNodeStates(),
		edges:         graph.InitialEdgeFlowStates(),
		thinking:      thinking.Initial(),
		createdAt:     deps.Now(),
	}
	s.thinkOpts = thinking.Options{
		MaxChars:  cfg.MaxChars,
		MaxLines:  cfg.MaxLines,
		Summarize: cfg.Summarize,
		OnGap:     s.onGap,
	}
	s.clock = deps.NewClock(s.post)
	s.machine = edgeflow.New(s.clock, s.onEdgeChange, cfg.Edge)
	s.snap.Store(s.buildSnapshot())

	deps.Metrics.active.Inc()
	go s.loop()
	s.publishUpdate(streaming.UpdateSessionOpened, nil)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CorrelationID returns the correlation scope the session was opened for.
func (s *Session) CorrelationID() string { return s.correlationID }

// Snapshot returns the most recently published state.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.stop:
			return
		case <-s.ctx.Done():
			s.shutdown()
			return
		}
	}
}

// post hands fn to the loop. It reports false once the session is closing.
func (s *Session) post(fn func()) bool {
	select {
	case s.inbox <- fn:
		return true
	case <-s.stop:
		return false
	case <-s.done:
		return false
	}
}

func closedError(id string) error {
	return schema.NewErrorf(schema.ErrCodeClosed, "session %s is closed", id)
}

// Submit queues ev for the loop. It returns once the event is queued.
func (s *Session) Submit(ctx context.Context, ev schema.Event) error {
	select {
	case <-s.stop:
		return closedError(s.id)
	default:
	}
	select {
	case s.inbox <- func() { s.apply(ev) }:
		return nil
	case <-s.stop:
		return closedError(s.id)
	case <-s.done:
		return closedError(s.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (s *Session) Do(ctx context.Context, fn func()) error {
	var err error
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		if s.closed {
			err = closedError(s.id)
			return
		}
		fn()
	}

	select {
	case s.inbox <- wrapped:
	case <-s.stop:
		return closedError(s.id)
	case <-s.done:
		return closedError(s.id)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return err
	case <-s.done:
		return closedError(s.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every event queued before the call has been applied.
func (s *Session) Flush(ctx context.Context) error {
	return s.Do(ctx, func() {})
}

// Apply submits ev and waits for it to be applied.
func (s *Session) Apply(ctx context.Context, ev schema.Event) error {
	return s.Do(ctx, func() { s.apply(ev) })
}

// SetAutoScrollLocked records the viewer's scroll lock.
func (s *Session) SetAutoScrollLocked(ctx context.Context, locked bool) error {
	return s.Do(ctx, func() {
		s.updateThinking(thinking.SetAutoScrollLocked(s.thinking, locked), nil)
	})
}

// ForceComplete marks a still-streaming transcript complete, e.g. at the end
// of a replay.
func (s *Session) ForceComplete(ctx context.Context) error {
	return s.Do(ctx, func() {
		s.updateThinking(thinking.ForceComplete(s.thinking), nil)
	})
}

// Reset returns every reducer to its initial state.
func (s *Session) Reset(ctx context.Context) error {
	return s.Do(ctx, func() {
		s.applying = true
		s.nodes = graph.InitialNodeStates()
		s.machine.Reset()
		s.thinking = thinking.Reset()
		s.pipeline = nil
		s.iteration = 0
		s.applying = false
		s.dirty = false
		s.publish(nil)
	})
}

// Close disposes the edge timers, publishes a final snapshot and stops the
// loop. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		finished := make(chan struct{})
		select {
		case s.inbox <- func() { s.shutdown(); close(finished) }:
			select {
			case <-finished:
			case <-s.done:
			}
		case <-s.done:
		}
		close(s.stop)
		<-s.done
	})
}

func (s *Session) shutdown() {
	if s.closed {
		return
	}
	s.machine.Dispose()
	s.closed = true
	s.publish(nil)
	s.publishUpdate(streaming.UpdateSessionClosed, nil)
	s.deps.Metrics.active.Dec()
	s.logger.Debug("session closed", slog.Uint64("events", s.events))
}

func (s *Session) apply(ev schema.Event) {
	if s.closed {
		return
	}
	start := time.Now()
	_, span := s.deps.Tracer.Start(s.ctx, "session.apply", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("event.kind", string(ev.Kind)),
		attribute.Int64("event.seq", ev.Sequence),
	))
	defer span.End()

	outcome := s.classify(ev)
	span.SetAttributes(attribute.String("event.outcome", outcome))
	s.deps.Metrics.events.WithLabelValues(string(ev.Kind), outcome).Inc()
	s.events++

	s.applying = true
	prevNodes := s.nodes
	s.nodes = graph.ReduceNodes(s.nodes, ev)
	s.machine.ApplyEvent(ev, edgeflow.ApplyOptions{PrefersReducedMotion: s.cfg.ReducedMotion()})
	next := thinking.Reduce(s.thinking, ev, s.thinkOpts)
	s.applying = false

	if outcome == outcomeApplied && ev.IsProgress() {
		s.iteration = ev.Progress.Iteration
		if d, ok := schema.Describe(ev.Progress.State); ok {
			s.pipeline = &d
		} else {
			s.logger.Debug("unknown pipeline state", slog.String("state", string(ev.Progress.State)))
		}
	}

	changed := s.nodes != prevNodes || s.dirty || outcome == outcomeApplied
	s.dirty = false
	if next != s.thinking {
		if ev.IsStream() && next.IsTruncated && !s.thinking.IsTruncated {
			s.deps.Metrics.truncations.Inc()
		}
		s.countArchived(s.thinking, next)
		s.thinking = next
		changed = true
	}
	if changed {
		s.publish(&ev)
	} else {
		s.snap.Store(s.buildSnapshot())
	}
	s.deps.Metrics.applyDuration.Observe(time.Since(start).Seconds())
}

// classify mirrors the ordering and correlation rules of the thinking
// reducer for metrics.
func (s *Session) classify(ev schema.Event) string {
	if !ev.IsProgress() && !ev.IsStream() {
		return outcomeIgnored
	}
	if s.thinking.CorrelationID != "" && ev.CorrelationID != s.thinking.CorrelationID {
		return outcomeForeign
	}
	if ev.Sequence <= s.thinking.LastSequence {
		return outcomeStale
	}
	return outcomeApplied
}

func (s *Session) countArchived(prev, next *thinking.State) {
	if len(next.StageHistory) == 0 {
		return
	}
	last := next.StageHistory[len(next.StageHistory)-1]
	if n := len(prev.StageHistory); n > 0 && prev.StageHistory[n-1] == last {
		return
	}
	s.deps.Metrics.archivedStages.WithLabelValues(string(last.Stage)).Inc()
}

func (s *Session) updateThinking(next *thinking.State, ev *schema.Event) {
	if next == s.thinking {
		return
	}
	s.thinking = next
	s.publish(ev)
}

func (s *Session) onGap(g thinking.Gap) {
	s.deps.Metrics.gaps.Inc()
	s.logger.Warn("sequence gap",
		slog.Int64("expected", g.Expected),
		slog.Int64("got", g.Got),
	)
}

func (s *Session) onEdgeChange(next graph.EdgeFlowStates) {
	for _, id := range graph.AllEdges() {
		if next[id].State != s.edges[id].State {
			s.deps.Metrics.edgeTransitions.WithLabelValues(id.String(), string(next[id].State)).Inc()
		}
	}
	s.edges = next
	if s.applying {
		s.dirty = true
		return
	}
	if !s.closed {
		s.publish(nil)
	}
}

func (s *Session) buildSnapshot() *Snapshot {
	corr := s.correlationID
	if corr == "" {
		corr = s.thinking.CorrelationID
	}
	snap := &Snapshot{
		SessionID:     s.id,
		CorrelationID: corr,
		Nodes:         s.nodes,
		Edges:         s.edges,
		Denoise:       graph.ComputeDenoiseLevels(s.edges),
		Thinking:      s.thinking,
		Pipeline:      s.pipeline,
		Iteration:     s.iteration,
		EventsSeen:    s.events,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.deps.Now(),
		Closed:        s.closed,
	}
	if s.thinking.CurrentStage != "" {
		snap.StageLabel = s.thinking.CurrentStage.Label()
	}
	return snap
}

func (s *Session) publish(ev *schema.Event) {
	snap := s.buildSnapshot()
	s.snap.Store(snap)
	if s.deps.Hub == nil {
		return
	}
	err := s.deps.Hub.Publish(context.WithoutCancel(s.ctx), streaming.Update{
		SessionID:     s.id,
		CorrelationID: snap.CorrelationID,
		Type:          streaming.UpdateSnapshot,
		Payload:       snap,
		Event:         ev,
		Vars:          snap.Vars(),
	})
	if err != nil {
		s.logger.Debug("publish snapshot failed", slog.String("error", err.Error()))
	}
}

func (s *Session) publishUpdate(kind string, payload any) {
	if s.deps.Hub == nil {
		return
	}
	_ = s.deps.Hub.Publish(context.WithoutCancel(s.ctx), streaming.Update{
		SessionID:     s.id,
		CorrelationID: s.correlationID,
		Type:          kind,
		Payload:       payload,
	})
}
