// Package sched provides the timer facility used by the polling engines.
//
// Engines never call time.AfterFunc directly: all delayed work goes through
// a Scheduler so cancellation is a first-class operation and tests can drive
// ticks deterministically with a Manual scheduler.
package sched

import "time"

// Handle is a cancellable pending callback.
//
// Stop reports whether the callback was prevented from running. Stopping an
// already-fired or already-stopped handle is a no-op.
type Handle interface {
	Stop() bool
}

// Scheduler arms delayed callbacks and supplies the current time.
//
// Implementations must be safe for concurrent use.
type Scheduler interface {
	// AfterFunc runs fn on its own goroutine after delay d.
	AfterFunc(d time.Duration, fn func()) Handle

	// Now returns the current time in UTC.
	Now() time.Time
}

type wallClock struct{}

// New returns a Scheduler backed by the wall clock and time.AfterFunc.
func New() Scheduler {
	return wallClock{}
}

func (wallClock) AfterFunc(d time.Duration, fn func()) Handle {
	return time.AfterFunc(d, fn)
}

func (wallClock) Now() time.Time {
	return time.Now().UTC()
}

// Compile-time check that *time.Timer satisfies Handle.
var _ Handle = (*time.Timer)(nil)
