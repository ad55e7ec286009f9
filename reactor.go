package dgram

import (
	"sync"
	"time"
)

// Readable is an event source that can be registered with a reactor for
// read-readiness notifications.
type Readable interface {
	// Fd returns the descriptor the reactor should monitor.
	Fd() uintptr

	// OnReadable is invoked by the reactor when the descriptor is ready
	// for reading. Returning a non-nil error means the source hit a fatal
	// error it could not absorb; surfacing it is the reactor's
	// responsibility.
	OnReadable() error
}

// Reactor is the event-notification loop a Port is driven by. Ports never
// reach for a process-global loop; callers inject one at construction,
// which also allows test doubles and multiple independent loops per
// process.
//
// All methods must be safe to call from within reactor callbacks.
type Reactor interface {
	// RegisterReadable starts read-readiness notifications for r.
	RegisterReadable(r Readable)

	// UnregisterReadable stops read-readiness notifications for r. No
	// further OnReadable calls are made once it returns.
	UnregisterReadable(r Readable)

	// ScheduleAfter runs f once after the given delay. A zero delay runs
	// f on the next loop iteration, never synchronously.
	ScheduleAfter(delay time.Duration, f func())
}

// Completion is a single-resolution handle. It starts pending and is
// resolved exactly once, after which Done is closed. Waiters select on
// Done.
type Completion struct {
	once sync.Once
	ch   chan struct{}
}

func newCompletion() *Completion {
	return &Completion{
		ch: make(chan struct{}),
	}
}

// Done returns a channel that is closed once the completion resolves.
func (c *Completion) Done() <-chan struct{} {
	return c.ch
}

// Resolved reports whether the completion has already resolved.
func (c *Completion) Resolved() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

func (c *Completion) resolve() {
	c.once.Do(func() {
		close(c.ch)
	})
}
