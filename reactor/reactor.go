//go:build unix

// Package reactor provides a minimal poll(2) backed event loop
// implementing the dgram.Reactor contract: read-readiness callbacks,
// delayed calls and a run/stop loop, all on a single goroutine.
package reactor

import (
	"sync"
	"time"

	"github.com/andydunstall/dgram"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type timer struct {
	deadline time.Time
	f        func()
}

// Reactor is a single-threaded cooperative event loop. Callbacks run on
// the goroutine that called Run; RegisterReadable, UnregisterReadable,
// ScheduleAfter and Stop may be called from any goroutine.
type Reactor struct {
	mu        sync.Mutex
	readables map[uintptr]dgram.Readable
	timers    []timer
	stopped   bool

	// Self-pipe used to interrupt poll when another goroutine schedules
	// work or stops the loop.
	wakeR int
	wakeW int

	logger *zap.Logger
}

type Options struct {
	Logger *zap.Logger
}

type Option func(*Options)

func WithLogger(logger *zap.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func defaultOptions() *Options {
	l, _ := zap.NewDevelopment()
	return &Options{
		Logger: l,
	}
}

// New creates a stopped reactor; Run starts it.
func New(options ...Option) (*Reactor, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(opts)
	}

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, err
	}
	unix.SetNonblock(p[0], true)
	unix.SetNonblock(p[1], true)

	return &Reactor{
		readables: make(map[uintptr]dgram.Readable),
		wakeR:     p[0],
		wakeW:     p[1],
		logger:    opts.Logger,
	}, nil
}

func (r *Reactor) RegisterReadable(readable dgram.Readable) {
	r.mu.Lock()
	r.readables[readable.Fd()] = readable
	r.mu.Unlock()
	r.wake()
}

func (r *Reactor) UnregisterReadable(readable dgram.Readable) {
	r.mu.Lock()
	delete(r.readables, readable.Fd())
	r.mu.Unlock()
	r.wake()
}

// ScheduleAfter runs f once on the loop goroutine after the given delay.
// A zero delay runs f on the next iteration, never synchronously.
func (r *Reactor) ScheduleAfter(delay time.Duration, f func()) {
	r.mu.Lock()
	r.timers = append(r.timers, timer{
		deadline: time.Now().Add(delay),
		f:        f,
	})
	r.mu.Unlock()
	r.wake()
}

// Run drives the loop until Stop. It blocks the calling goroutine; all
// callbacks are invoked from it.
func (r *Reactor) Run() {
	for {
		r.mu.Lock()
		if r.stopped {
			r.mu.Unlock()
			return
		}
		fds := make([]unix.PollFd, 0, len(r.readables)+1)
		fds = append(fds, unix.PollFd{Fd: int32(r.wakeR), Events: unix.POLLIN})
		for fd := range r.readables {
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		}
		timeout := r.pollTimeoutLocked()
		r.mu.Unlock()

		n, err := unix.Poll(fds, timeout)
		if err != nil && err != unix.EINTR {
			r.logger.Error("poll failed", zap.Error(err))
			return
		}

		r.fireTimers()

		if n <= 0 {
			continue
		}
		for _, pfd := range fds {
			if pfd.Revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) == 0 {
				continue
			}
			if int(pfd.Fd) == r.wakeR {
				r.drainWake()
				continue
			}
			r.mu.Lock()
			readable, ok := r.readables[uintptr(pfd.Fd)]
			r.mu.Unlock()
			if !ok {
				// Unregistered by an earlier callback this iteration.
				continue
			}
			if err := readable.OnReadable(); err != nil {
				// A fatal error from a source; drop it from the loop so
				// it cannot spin.
				r.logger.Error(
					"readable failed; unregistering",
					zap.Uint64("fd", uint64(pfd.Fd)),
					zap.Error(err),
				)
				r.UnregisterReadable(readable)
			}
		}
	}
}

// Stop terminates Run after the current iteration.
func (r *Reactor) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.wake()
}

// Close releases the wake pipe. Only call once Run has returned.
func (r *Reactor) Close() error {
	if err := unix.Close(r.wakeR); err != nil {
		return err
	}
	return unix.Close(r.wakeW)
}

// pollTimeoutLocked computes the poll timeout in milliseconds from the
// earliest pending timer; -1 blocks until readiness or a wake.
func (r *Reactor) pollTimeoutLocked() int {
	if len(r.timers) == 0 {
		return -1
	}
	next := r.timers[0].deadline
	for _, t := range r.timers[1:] {
		if t.deadline.Before(next) {
			next = t.deadline
		}
	}
	d := time.Until(next)
	if d <= 0 {
		return 0
	}
	// Round up so we don't spin waking just before the deadline.
	return int(d/time.Millisecond) + 1
}

func (r *Reactor) fireTimers() {
	now := time.Now()

	r.mu.Lock()
	var due []func()
	remaining := r.timers[:0]
	for _, t := range r.timers {
		if !t.deadline.After(now) {
			due = append(due, t.f)
		} else {
			remaining = append(remaining, t)
		}
	}
	r.timers = remaining
	r.mu.Unlock()

	// Run without the lock held; callbacks may schedule more work.
	for _, f := range due {
		f()
	}
}

func (r *Reactor) wake() {
	var b [1]byte
	unix.Write(r.wakeW, b[:])
}

func (r *Reactor) drainWake() {
	var b [64]byte
	for {
		n, err := unix.Read(r.wakeR, b[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
