//go:build unix

package tests

import (
	"fmt"
	"time"

	"github.com/andydunstall/dgram"
	"github.com/andydunstall/dgram/reactor"
	multierror "github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Datagram is a payload and its source as seen by a ChannelProtocol.
type Datagram struct {
	B    []byte
	From dgram.Addr
}

// ChannelProtocol exposes the protocol callbacks as channels so tests can
// wait on them.
type ChannelProtocol struct {
	ReadyCh    chan dgram.Transport
	DatagramCh chan Datagram
	RefusedCh  chan struct{}
	StoppedCh  chan struct{}
}

func NewChannelProtocol() *ChannelProtocol {
	return &ChannelProtocol{
		ReadyCh:    make(chan dgram.Transport, 1),
		DatagramCh: make(chan Datagram, 64),
		RefusedCh:  make(chan struct{}, 64),
		StoppedCh:  make(chan struct{}, 64),
	}
}

func (p *ChannelProtocol) TransportReady(t dgram.Transport) {
	p.ReadyCh <- t
}

func (p *ChannelProtocol) DatagramReceived(b []byte, from dgram.Addr) {
	p.DatagramCh <- Datagram{B: b, From: from}
}

func (p *ChannelProtocol) ConnectionRefused() {
	p.RefusedCh <- struct{}{}
}

func (p *ChannelProtocol) TransportStopped() {
	p.StoppedCh <- struct{}{}
}

func (p *ChannelProtocol) WaitDatagramWithTimeout(t time.Duration) (Datagram, bool) {
	select {
	case d := <-p.DatagramCh:
		return d, true
	case <-time.After(t):
		return Datagram{}, false
	}
}

func (p *ChannelProtocol) WaitStoppedWithTimeout(t time.Duration) bool {
	select {
	case <-p.StoppedCh:
		return true
	case <-time.After(t):
		return false
	}
}

// Loop runs a reactor on a background goroutine and serializes test
// access onto it, since ports must only be used from their reactor's
// goroutine.
type Loop struct {
	reactor *reactor.Reactor
	doneCh  chan struct{}
}

func NewLoop() (*Loop, error) {
	r, err := reactor.New(reactor.WithLogger(zap.NewNop()))
	if err != nil {
		return nil, err
	}
	l := &Loop{
		reactor: r,
		doneCh:  make(chan struct{}),
	}
	go func() {
		defer close(l.doneCh)
		r.Run()
	}()
	return l, nil
}

func (l *Loop) Reactor() dgram.Reactor {
	return l.reactor
}

// Call runs f on the loop goroutine and waits for it to return.
func (l *Loop) Call(f func()) {
	calledCh := make(chan struct{})
	l.reactor.ScheduleAfter(0, func() {
		defer close(calledCh)
		f()
	})
	<-calledCh
}

// AddPort creates and starts a port on the loop, returning its protocol.
func (l *Loop) AddPort(iface string) (*dgram.Port, *ChannelProtocol, error) {
	proto := NewChannelProtocol()

	port, err := dgram.NewPort(
		0,
		proto,
		l.reactor,
		dgram.WithInterface(iface),
		dgram.WithLogger(zap.NewNop()),
	)
	if err != nil {
		return nil, nil, err
	}

	var listenErr error
	l.Call(func() {
		listenErr = port.StartListening()
	})
	if listenErr != nil {
		return nil, nil, listenErr
	}
	return port, proto, nil
}

// StopPorts stops the given ports on the loop and waits for each
// teardown to complete.
func (l *Loop) StopPorts(ports ...*dgram.Port) error {
	var errs error
	for _, port := range ports {
		var completion *dgram.Completion
		l.Call(func() {
			completion = port.StopListening()
		})
		if completion == nil {
			continue
		}
		select {
		case <-completion.Done():
		case <-time.After(time.Second * 3):
			errs = multierror.Append(errs, fmt.Errorf("timed out stopping port %s", port))
		}
	}
	return errs
}

// Shutdown stops the loop. Ports must be stopped first.
func (l *Loop) Shutdown() {
	l.reactor.Stop()
	<-l.doneCh
	l.reactor.Close()
}
