//go:build unix

package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pipeReadable wraps the read end of a pipe so it can be registered with
// the reactor.
type pipeReadable struct {
	r       int
	w       int
	readyCh chan []byte
}

func newPipeReadable(t *testing.T) *pipeReadable {
	var p [2]int
	assert.Nil(t, unix.Pipe(p[:]))
	assert.Nil(t, unix.SetNonblock(p[0], true))
	return &pipeReadable{
		r:       p[0],
		w:       p[1],
		readyCh: make(chan []byte, 64),
	}
}

func (p *pipeReadable) Fd() uintptr {
	return uintptr(p.r)
}

func (p *pipeReadable) OnReadable() error {
	buf := make([]byte, 64)
	n, err := unix.Read(p.r, buf)
	if err != nil || n <= 0 {
		return nil
	}
	p.readyCh <- buf[:n]
	return nil
}

func (p *pipeReadable) Close() {
	unix.Close(p.r)
	unix.Close(p.w)
}

func newTestReactor(t *testing.T) (*Reactor, *sync.WaitGroup) {
	r, err := New(WithLogger(zap.NewNop()))
	assert.Nil(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run()
	}()
	return r, &wg
}

func TestReactor_Readable(t *testing.T) {
	r, wg := newTestReactor(t)
	defer func() {
		r.Stop()
		wg.Wait()
		r.Close()
	}()

	p := newPipeReadable(t)
	defer p.Close()
	r.RegisterReadable(p)

	_, err := unix.Write(p.w, []byte("wake"))
	assert.Nil(t, err)

	select {
	case b := <-p.readyCh:
		assert.Equal(t, []byte("wake"), b)
	case <-time.After(time.Second * 3):
		t.Fatal("timed out waiting for readable callback")
	}

	// After unregistering no further callbacks fire.
	r.UnregisterReadable(p)
	_, err = unix.Write(p.w, []byte("wake"))
	assert.Nil(t, err)
	select {
	case <-p.readyCh:
		t.Fatal("callback fired after unregister")
	case <-time.After(time.Millisecond * 100):
	}
}

func TestReactor_ScheduleAfter(t *testing.T) {
	r, wg := newTestReactor(t)
	defer func() {
		r.Stop()
		wg.Wait()
		r.Close()
	}()

	doneCh := make(chan struct{})
	r.ScheduleAfter(0, func() {
		close(doneCh)
	})

	select {
	case <-doneCh:
	case <-time.After(time.Second * 3):
		t.Fatal("timed out waiting for scheduled call")
	}
}

func TestReactor_ZeroDelayIsNotSynchronous(t *testing.T) {
	r, wg := newTestReactor(t)
	defer func() {
		r.Stop()
		wg.Wait()
		r.Close()
	}()

	resultCh := make(chan bool, 1)
	r.ScheduleAfter(0, func() {
		ran := false
		r.ScheduleAfter(0, func() {
			ran = true
		})
		// The nested call must not have run inside ScheduleAfter; it is
		// deferred to a later iteration.
		resultCh <- ran
	})

	select {
	case ran := <-resultCh:
		assert.False(t, ran)
	case <-time.After(time.Second * 3):
		t.Fatal("timed out waiting for scheduled call")
	}
}

func TestReactor_ScheduleOrdering(t *testing.T) {
	r, wg := newTestReactor(t)
	defer func() {
		r.Stop()
		wg.Wait()
		r.Close()
	}()

	var mu sync.Mutex
	var order []string
	doneCh := make(chan struct{})

	r.ScheduleAfter(time.Millisecond*50, func() {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		close(doneCh)
	})
	r.ScheduleAfter(0, func() {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})

	select {
	case <-doneCh:
	case <-time.After(time.Second * 3):
		t.Fatal("timed out waiting for scheduled calls")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestReactor_Stop(t *testing.T) {
	r, err := New(WithLogger(zap.NewNop()))
	assert.Nil(t, err)

	doneCh := make(chan struct{})
	go func() {
		r.Run()
		close(doneCh)
	}()

	r.Stop()
	select {
	case <-doneCh:
	case <-time.After(time.Second * 3):
		t.Fatal("timed out waiting for run to return")
	}
	assert.Nil(t, r.Close())
}
