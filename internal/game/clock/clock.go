// Package clock implements the period countdown clock. It keeps time only and
// knows nothing about the rules of the game.
package clock

import (
	"fmt"
	"time"
)

// Snapshot is the clock reading attached to committed events.
type Snapshot struct {
	Quarter          int `json:"quarter"`
	SecondsRemaining int `json:"seconds_remaining"`
}

// Clock counts a period down in whole seconds. Elapsed time is measured
// against the wall clock on every Tick, so irregular polling neither loses
// nor double counts time.
type Clock struct {
	now       func() time.Time
	remaining time.Duration
	quarter   int
	running   bool
	lastTick  time.Time
	expired   bool

	// OnPeriodEnd runs once each time the countdown reaches zero while running.
	OnPeriodEnd func(quarter int)
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the wall clock source.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// New creates a stopped clock set to seconds for quarter 1.
func New(seconds int, opts ...Option) *Clock {
	c := &Clock{
		now:     time.Now,
		quarter: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.remaining = time.Duration(max(seconds, 0)) * time.Second
	c.expired = c.remaining == 0
	return c
}

// Start resumes the countdown. Starting an expired clock is a no-op.
func (c *Clock) Start() {
	if c.running || c.expired {
		return
	}
	c.running = true
	c.lastTick = c.now()
}

// Pause stops the countdown, keeping the time elapsed up to now.
func (c *Clock) Pause() {
	if !c.running {
		return
	}
	c.Tick()
	c.running = false
}

// Reset stops the clock and sets it to seconds.
func (c *Clock) Reset(seconds int) error {
	return c.set(seconds, true)
}

// SetTime sets the remaining time, keeping the running state.
func (c *Clock) SetTime(seconds int) error {
	return c.set(seconds, false)
}

func (c *Clock) set(seconds int, stop bool) error {
	if seconds < 0 {
		return fmt.Errorf("clock time must not be negative, got %d", seconds)
	}
	c.remaining = time.Duration(seconds) * time.Second
	c.expired = seconds == 0
	if stop || c.expired {
		c.running = false
	}
	c.lastTick = c.now()
	return nil
}

// SetQuarter records the period the clock is counting.
func (c *Clock) SetQuarter(q int) error {
	if q < 1 {
		return fmt.Errorf("quarter must be at least 1, got %d", q)
	}
	c.quarter = q
	return nil
}

// Tick applies the wall time elapsed since the previous tick. It returns
// true exactly once per period, on the tick that reaches zero.
func (c *Clock) Tick() bool {
	if !c.running {
		return false
	}
	now := c.now()
	elapsed := now.Sub(c.lastTick)
	c.lastTick = now
	if elapsed <= 0 {
		return false
	}
	c.remaining -= elapsed
	if c.remaining > 0 {
		return false
	}
	c.remaining = 0
	c.running = false
	c.expired = true
	if c.OnPeriodEnd != nil {
		c.OnPeriodEnd(c.quarter)
	}
	return true
}

// Running reports whether the clock is counting down.
func (c *Clock) Running() bool { return c.running }

// Expired reports whether the current period has run out.
func (c *Clock) Expired() bool { return c.expired }

// Quarter returns the period being counted.
func (c *Clock) Quarter() int { return c.quarter }

// SecondsRemaining returns the remaining time rounded up to whole seconds,
// so the display only reads zero once the period is over.
func (c *Clock) SecondsRemaining() int {
	return int((c.remaining + time.Second - 1) / time.Second)
}

// Snapshot returns the current reading.
func (c *Clock) Snapshot() Snapshot {
	return Snapshot{Quarter: c.quarter, SecondsRemaining: c.SecondsRemaining()}
}
