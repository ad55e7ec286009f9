package dgram

import (
	"time"
)

// MockReactor is a manually stepped Reactor for tests. Readiness and
// scheduled callbacks only run when the test pumps them, making reactor
// interactions deterministic.
type MockReactor struct {
	readables map[uintptr]Readable
	scheduled []scheduledCall
}

type scheduledCall struct {
	delay time.Duration
	f     func()
}

func NewMockReactor() *MockReactor {
	return &MockReactor{
		readables: make(map[uintptr]Readable),
	}
}

func (r *MockReactor) RegisterReadable(readable Readable) {
	r.readables[readable.Fd()] = readable
}

func (r *MockReactor) UnregisterReadable(readable Readable) {
	delete(r.readables, readable.Fd())
}

func (r *MockReactor) ScheduleAfter(delay time.Duration, f func()) {
	r.scheduled = append(r.scheduled, scheduledCall{delay: delay, f: f})
}

// Registered reports whether the readable is currently registered.
func (r *MockReactor) Registered(readable Readable) bool {
	_, ok := r.readables[readable.Fd()]
	return ok
}

// PollReadable invokes OnReadable on each registered readable once,
// as one loop iteration would, returning the first error.
func (r *MockReactor) PollReadable() error {
	for _, readable := range r.readables {
		if err := readable.OnReadable(); err != nil {
			return err
		}
	}
	return nil
}

// Advance runs all scheduled calls whose delay does not exceed d,
// in the order they were scheduled. Calls scheduled while advancing run
// too, matching a loop draining its timer queue.
func (r *MockReactor) Advance(d time.Duration) {
	for {
		pending := r.scheduled
		r.scheduled = nil
		var remaining []scheduledCall
		ran := false
		for _, call := range pending {
			if call.delay <= d {
				call.f()
				ran = true
			} else {
				remaining = append(remaining, call)
			}
		}
		r.scheduled = append(remaining, r.scheduled...)
		if !ran {
			return
		}
	}
}
