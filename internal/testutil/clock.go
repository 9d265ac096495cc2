// Package testutil holds deterministic helpers shared by the scenario harness
// and tests.
package testutil

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// StepClock is a quartz.Clock whose Now is set explicitly by the caller.
//
// Unlike quartz.Mock it needs no testing.TB, so the scenario harness can use
// it from the CLI as well as from tests. Timers and tickers delegate to the
// real clock; only reads of the current time are controlled.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	quartz.Clock

	mu  sync.Mutex
	now time.Time
}

// NewStepClock creates a clock reading start (in UTC).
func NewStepClock(start time.Time) *StepClock {
	return &StepClock{Clock: quartz.NewReal(), now: start.UTC()}
}

// Now returns the current step time.
func (c *StepClock) Now(_ ...string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the step time elapsed since t.
func (c *StepClock) Since(t time.Time, _ ...string) time.Duration {
	return c.Now().Sub(t)
}

// Until returns the step time remaining until t.
func (c *StepClock) Until(t time.Time, _ ...string) time.Duration {
	return t.Sub(c.Now())
}

// Set moves the clock to t. Moving backwards is allowed; scenarios use it to
// model out-of-order client timestamps.
func (c *StepClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d and returns the new time.
func (c *StepClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
