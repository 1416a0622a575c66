// Package timing provides the clock and delay primitives used by the sensor
// decoder and the relay scheduler. The fake implementation advances only when
// told to, so timing-critical code can be tested without real sleeps.
package timing

import "time"

// Clock is a monotonic time source with a busy-wait delay.
type Clock interface {
	// Millis returns milliseconds since the clock started. It wraps at 2^32
	// like a hardware tick counter.
	Millis() uint32

	// Micros returns microseconds since the clock started.
	Micros() uint64

	// DelayMicros busy-waits for at least us microseconds.
	DelayMicros(us uint32)

	// Sleep yields for d. Used where the caller may be descheduled.
	Sleep(d time.Duration)
}

// RealClock measures time from its creation using the runtime monotonic clock.
type RealClock struct {
	start time.Time
}

// NewRealClock returns a RealClock started now.
func NewRealClock() *RealClock {
	return &RealClock{start: time.Now()}
}

// Millis returns elapsed milliseconds, truncated to 32 bits.
func (c *RealClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Micros returns elapsed microseconds.
func (c *RealClock) Micros() uint64 {
	return uint64(time.Since(c.start).Microseconds())
}

// DelayMicros spins until us microseconds have passed. time.Sleep cannot
// resolve single microseconds, so this never yields.
func (c *RealClock) DelayMicros(us uint32) {
	deadline := time.Now().Add(time.Duration(us) * time.Microsecond)
	for time.Now().Before(deadline) {
	}
}

// Sleep calls time.Sleep.
func (c *RealClock) Sleep(d time.Duration) {
	time.Sleep(d)
}
