// Package timeutil abstracts the wall clock so paced loops, such as
// capture replay, can be driven deterministically in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time surface the replay pacer needs.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTimer(d time.Duration) Timer
}

// Timer mirrors the time.Timer methods callers use.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) NewTimer(d time.Duration) Timer  { return realTimer{time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (t realTimer) C() <-chan time.Time { return t.t.C }
func (t realTimer) Stop() bool          { return t.t.Stop() }

// ManualClock is a Clock for tests. Time only moves when a timer is
// created: NewTimer records the requested wait, advances the clock by
// it, and hands back an already-fired timer, so a paced loop runs flat
// out while the test observes exactly how long it asked to sleep.
type ManualClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

// NewManualClock creates a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *ManualClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	fireAt := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- fireAt
	return firedTimer{ch}
}

// Waits returns the durations passed to NewTimer, in order.
func (c *ManualClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

type firedTimer struct{ ch chan time.Time }

func (t firedTimer) C() <-chan time.Time { return t.ch }
func (t firedTimer) Stop() bool          { return false }
