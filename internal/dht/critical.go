package dht

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// CriticalSection guards the timing-sensitive part of an exchange.
// Enter acquires it and returns the release function, which is safe to call
// more than once.
type CriticalSection interface {
	Enter() (release func())
}

// ThreadLock pins the calling goroutine to its OS thread and suspends the
// garbage collector so that neither goroutine migration nor a GC cycle
// stretches a microsecond-scale pulse.
type ThreadLock struct{}

// Enter locks the OS thread and disables GC until release is called.
func (ThreadLock) Enter() func() {
	runtime.LockOSThread()
	gc := debug.SetGCPercent(-1)
	var once sync.Once
	return func() {
		once.Do(func() {
			debug.SetGCPercent(gc)
			runtime.UnlockOSThread()
		})
	}
}

// NopSection is a CriticalSection that does nothing.
type NopSection struct{}

// Enter returns a no-op release.
func (NopSection) Enter() func() { return func() {} }
