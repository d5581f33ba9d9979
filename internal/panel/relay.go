package panel

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/rendis/iterview/internal/streaming"
)

// coalescer buffers updates for one stream subscriber. Queued snapshots of
// the same session are replaced by newer ones; other updates are kept in
// order.
type coalescer struct {
	pending []streaming.Update
	index   map[string]int
}

func newCoalescer() *coalescer {
	return &coalescer{index: make(map[string]int)}
}

func (c *coalescer) add(u streaming.Update) {
	if u.Type == streaming.UpdateSnapshot {
		if i, ok := c.index[u.SessionID]; ok {
			c.pending[i] = u
			return
		}
		c.index[u.SessionID] = len(c.pending)
	}
	c.pending = append(c.pending, u)
}

func (c *coalescer) take() []streaming.Update {
	out := c.pending
	c.pending = nil
	clear(c.index)
	return out
}

// newWriteLimiter spaces writes at least minInterval apart. A non-positive
// interval never delays.
func newWriteLimiter(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

// relay copies updates from ch to write until ctx is done, ch closes or write
// fails. Bursts faster than the limiter allows are coalesced.
func relay(ctx context.Context, ch <-chan streaming.Update, limiter *rate.Limiter, write func(streaming.Update) error) error {
	buf := newCoalescer()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	flush := func() error {
		for _, u := range buf.take() {
			if err := write(u); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-ch:
			if !ok {
				return flush()
			}
			buf.add(u)
			if fire != nil {
				continue
			}
			if d := limiter.Reserve().Delay(); d > 0 {
				timer = time.NewTimer(d)
				fire = timer.C
				continue
			}
			if err := flush(); err != nil {
				return err
			}
		case <-fire:
			fire = nil
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
