package streaming

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rendis/iterview/internal/expressions"
	"github.com/rendis/iterview/pkg/schema"
)

const defaultChannelBuffer = 64

// subscriber holds a channel and filter for a single subscriber.
type subscriber struct {
	ch     chan Update
	filter UpdateFilter
	expr   *expressions.Filter
}

// MemoryHub is an in-memory UpdateHub implementation using channels.
type MemoryHub struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	seq     atomic.Uint64
	pubSeq  atomic.Uint64
	dropped atomic.Uint64

	filters *expressions.FilterEngine
	logger  *slog.Logger
}

// HubOption configures a MemoryHub.
type HubOption func(*MemoryHub)

// WithFilterEngine enables UpdateFilter.Expression.
func WithFilterEngine(filters *expressions.FilterEngine) HubOption {
	return func(h *MemoryHub) { h.filters = filters }
}

// WithLogger sets the hub logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *MemoryHub) { h.logger = logger }
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub(opts ...HubOption) *MemoryHub {
	h := &MemoryHub{
		subs:   make(map[uint64]*subscriber),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Publish sends an update to all matching subscribers.
// Non-blocking: when a subscriber's channel is full its oldest queued update
// is discarded to make room, so slow readers always converge on the latest
// snapshot.
func (h *MemoryHub) Publish(ctx context.Context, update Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	update.Seq = h.pubSeq.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !h.matches(ctx, sub, update) {
			continue
		}
		select {
		case sub.ch <- update:
			continue
		default:
		}
		// backpressure: evict the oldest entry, then retry once
		select {
		case <-sub.ch:
			h.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- update:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe creates a new subscription filtered by the given UpdateFilter.
// Returns a receive-only channel, a cancel function, and any error.
func (h *MemoryHub) Subscribe(ctx context.Context, filter UpdateFilter) (<-chan Update, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var compiled *expressions.Filter
	if filter.Expression != "" {
		if h.filters == nil {
			return nil, nil, schema.NewError(schema.ErrCodeValidation, "expression filters are not enabled")
		}
		var err error
		if compiled, err = h.filters.Compile(filter.Expression); err != nil {
			return nil, nil, err
		}
	}

	id := h.seq.Add(1)
	ch := make(chan Update, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter, expr: compiled}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}

	return ch, cancel, nil
}

// Subscribers returns the number of active subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many updates were discarded for slow subscribers.
func (h *MemoryHub) Dropped() uint64 {
	return h.dropped.Load()
}

// matches reports whether u passes the subscriber's filter. A failing
// expression drops the update.
func (h *MemoryHub) matches(ctx context.Context, sub *subscriber, u Update) bool {
	f := sub.filter
	if f.SessionID != "" && f.SessionID != u.SessionID {
		return false
	}
	if f.CorrelationID != "" && f.CorrelationID != u.CorrelationID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, u.Type) {
		return false
	}
	if sub.expr == nil {
		return true
	}

	var event map[string]any
	if u.Event != nil {
		event = expressions.EventVars(*u.Event)
	}
	ok, err := sub.expr.Match(ctx, event, u.Vars)
	if err != nil {
		h.logger.Debug("update filter failed",
			slog.String("expression", f.Expression),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}
