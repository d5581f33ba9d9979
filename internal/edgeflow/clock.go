package edgeflow

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop cancels the timer. After Stop returns the callback will not run.
	Stop() bool
}

// Clock schedules callbacks. Callbacks must be delivered on the goroutine that
// owns the Machine.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// --- Loop clock ---

// Dispatcher hands fn to an event loop for execution on the loop goroutine.
// It reports false when the loop no longer accepts work.
type Dispatcher func(fn func()) bool

// LoopClock runs timers on the wall clock but delivers their callbacks through
// a Dispatcher so they are serialized with the loop's other work.
type LoopClock struct {
	dispatch Dispatcher
}

// NewLoopClock creates a LoopClock posting callbacks through dispatch.
func NewLoopClock(dispatch Dispatcher) *LoopClock {
	return &LoopClock{dispatch: dispatch}
}

func (c *LoopClock) Now() time.Time { return time.Now() }

// AfterFunc schedules f on the loop after d.
func (c *LoopClock) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		c.dispatch(func() {
			// stopped is only touched on the loop goroutine.
			if lt.stopped {
				return
			}
			lt.stopped = true
			f()
		})
	})
	return lt
}

type loopTimer struct {
	t       *time.Timer
	stopped bool
}

// Stop must be called from the loop goroutine.
func (t *loopTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	t.t.Stop()
	return wasActive
}

// --- Manual clock ---

// ManualClock is a virtual clock for deterministic tests. Time only moves
// when Advance is called; due callbacks run synchronously inside Advance.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

// NewManualClock creates a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the virtual time reaches now+d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), order: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of scheduled timers.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves virtual time forward by d, firing every timer that comes due
// in deadline order. Timers scheduled by callbacks fire too when they fall
// inside the window.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.popDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		c.mu.Unlock()

		next.fn()
	}
}

func (c *ManualClock) popDueLocked(target time.Time) *manualTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if !c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].at.Before(c.timers[j].at)
		}
		return c.timers[i].order < c.timers[j].order
	})
	first := c.timers[0]
	if first.at.After(target) {
		return nil
	}
	c.timers = c.timers[1:]
	return first
}

func (c *ManualClock) remove(t *manualTimer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	clock *ManualClock
	at    time.Time
	order uint64
	fn    func()
}

func (t *manualTimer) Stop() bool {
	return t.clock.remove(t)
}
