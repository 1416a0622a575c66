package timing

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests.
// DelayMicros and Sleep advance the clock instead of blocking.
type FakeClock struct {
	mu sync.Mutex
	us uint64
}

// NewFakeClock creates a FakeClock positioned at the given millisecond value.
func NewFakeClock(startMs uint32) *FakeClock {
	return &FakeClock{us: uint64(startMs) * 1000}
}

// Millis returns the current fake time in milliseconds, truncated to 32 bits.
func (c *FakeClock) Millis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(c.us / 1000)
}

// Micros returns the current fake time in microseconds.
func (c *FakeClock) Micros() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.us
}

// DelayMicros advances the clock by us.
func (c *FakeClock) DelayMicros(us uint32) {
	c.Advance(time.Duration(us) * time.Microsecond)
}

// Sleep advances the clock by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward. Negative durations are ignored.
func (c *FakeClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.us += uint64(d / time.Microsecond)
	c.mu.Unlock()
}
