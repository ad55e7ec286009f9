//go:build unix

// Package cluster runs a set of echo nodes on a shared reactor for
// evaluating the transport.
package cluster

import (
	"fmt"
	"time"

	"github.com/andydunstall/dgram"
	"github.com/andydunstall/dgram/reactor"
	"github.com/google/uuid"
	multierror "github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// EchoProtocol writes every received datagram straight back to its
// sender.
type EchoProtocol struct {
	transport dgram.Transport
	logger    *zap.Logger
}

func NewEchoProtocol(logger *zap.Logger) *EchoProtocol {
	return &EchoProtocol{
		logger: logger,
	}
}

func (p *EchoProtocol) TransportReady(t dgram.Transport) {
	p.transport = t
}

func (p *EchoProtocol) DatagramReceived(b []byte, from dgram.Addr) {
	if _, err := p.transport.Write(b, &from); err != nil {
		p.logger.Error("failed to echo datagram", zap.Error(err))
	}
}

func (p *EchoProtocol) ConnectionRefused() {}

func (p *EchoProtocol) TransportStopped() {}

// Node is one echo node in the cluster.
type Node struct {
	ID   string
	Port *dgram.Port
}

// Cluster owns a reactor goroutine and the echo nodes running on it.
type Cluster struct {
	reactor *reactor.Reactor
	doneCh  chan struct{}
	nodes   map[string]*Node
	logger  *zap.Logger
}

func NewCluster() (*Cluster, error) {
	logger := zap.NewNop()
	r, err := reactor.New(reactor.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		reactor: r,
		doneCh:  make(chan struct{}),
		nodes:   make(map[string]*Node),
		logger:  logger,
	}
	go func() {
		defer close(c.doneCh)
		r.Run()
	}()
	return c, nil
}

// AddNode starts a new echo node listening on an ephemeral loopback
// port.
func (c *Cluster) AddNode() (*Node, error) {
	id := uuid.New().String()[:7]

	port, err := dgram.NewPort(
		0,
		NewEchoProtocol(c.logger),
		c.reactor,
		dgram.WithInterface("127.0.0.1"),
		dgram.WithLogger(c.logger),
	)
	if err != nil {
		return nil, err
	}

	var listenErr error
	c.call(func() {
		listenErr = port.StartListening()
	})
	if listenErr != nil {
		return nil, listenErr
	}

	node := &Node{
		ID:   id,
		Port: port,
	}
	c.nodes[id] = node
	return node, nil
}

func (c *Cluster) AddNodes(n int) error {
	for i := 0; i != n; i++ {
		if _, err := c.AddNode(); err != nil {
			return err
		}
	}
	return nil
}

// Addrs returns the bound address of each node.
func (c *Cluster) Addrs() []string {
	addrs := []string{}
	for _, node := range c.nodes {
		addrs = append(addrs, node.Port.LocalAddr().String())
	}
	return addrs
}

// Shutdown stops all nodes and the reactor.
func (c *Cluster) Shutdown() error {
	var errs error
	for _, node := range c.nodes {
		var completion *dgram.Completion
		port := node.Port
		c.call(func() {
			completion = port.StopListening()
		})
		if completion == nil {
			continue
		}
		select {
		case <-completion.Done():
		case <-time.After(time.Second * 3):
			errs = multierror.Append(errs, fmt.Errorf("timed out stopping node %s", node.ID))
		}
	}

	c.reactor.Stop()
	<-c.doneCh
	if err := c.reactor.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}

// call runs f on the reactor goroutine and waits for it to return, since
// ports must only be used from their reactor's goroutine.
func (c *Cluster) call(f func()) {
	calledCh := make(chan struct{})
	c.reactor.ScheduleAfter(0, func() {
		defer close(calledCh)
		f()
	})
	<-calledCh
}
