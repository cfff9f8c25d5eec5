package farm

import "time"

// Clock supplies the current unix second. Implementations must never go
// backwards.
type Clock interface {
	Now() uint64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() uint64

// Now implements Clock.
func (f ClockFunc) Now() uint64 { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() uint64 {
	now := time.Now().Unix()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

// ManualClock is a settable clock for simulations and tests.
type ManualClock struct {
	now uint64
}

// NewManualClock starts a manual clock at start.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() uint64 { return c.now }

// Advance moves the clock forward by seconds.
func (c *ManualClock) Advance(seconds uint64) { c.now += seconds }

// Set moves the clock to ts. Earlier timestamps are ignored.
func (c *ManualClock) Set(ts uint64) {
	if ts > c.now {
		c.now = ts
	}
}
