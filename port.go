// Package dgram provides a non-blocking datagram (UDP) transport driven by
// a cooperative single-threaded reactor. A Port owns one datagram socket
// and dispatches received datagrams to a Protocol; writes are synchronous
// and never block the loop.
package dgram

import (
	"fmt"

	"github.com/andydunstall/dgram/internal/sockerr"
	"github.com/andydunstall/dgram/internal/socket"
	"go.uber.org/zap"
)

// Family is the address family of a port, derived once from its bind
// interface at construction.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

func sockFamily(f Family) socket.Family {
	if f == IPv6 {
		return socket.IPv6
	}
	return socket.IPv4
}

type portState int

const (
	stateUnbound portState = iota
	stateListening
	stateStopping
	stateClosed
)

// Port is a datagram port listening for packets. It is driven by the
// reactor it was constructed with and must only be used from that
// reactor's goroutine.
type Port struct {
	port  int
	iface string

	proto   Protocol
	reactor Reactor
	family  Family

	maxPacketSize int
	maxThroughput int

	sock    *socket.Socket
	readBuf []byte
	state   portState

	// realPort is the OS-assigned port once bound, 0 until listening.
	realPort int

	connectedPeer *Addr

	// preexisting is an adopted descriptor used instead of creating and
	// binding a new socket.
	preexisting *socket.Socket

	// multicast is the optional capability configuring the socket at
	// creation time, nil on plain ports.
	multicast *multicastCapability

	stopC *Completion

	logger *zap.Logger
}

// NewPort creates an unbound Port that will listen on the given port for
// the protocol, driven by the given reactor. The address family is
// derived from the bind interface option: an IPv6 literal selects IPv6,
// an IPv4 literal or the empty default selects IPv4, and anything else
// fails with an InvalidAddressError.
func NewPort(port int, proto Protocol, reactor Reactor, options ...Option) (*Port, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(opts)
	}
	return newPort(port, proto, reactor, nil, opts)
}

// AdoptDatagramPort creates a Port from an existing datagram descriptor.
// The descriptor must already be bound and in non-blocking mode; any
// additional attributes, such as close-on-exec, must also be set already.
func AdoptDatagramPort(fd uintptr, family Family, proto Protocol, reactor Reactor, options ...Option) (*Port, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(opts)
	}

	sock := socket.FromFd(fd, sockFamily(family))
	host, _, err := sock.LocalAddr()
	if err != nil {
		return nil, err
	}
	opts.Interface = host

	p, err := newPort(0, proto, reactor, nil, opts)
	if err != nil {
		return nil, err
	}
	p.preexisting = sock
	return p, nil
}

func newPort(port int, proto Protocol, reactor Reactor, multicast *multicastCapability, opts *Options) (*Port, error) {
	family, err := familyOf(opts.Interface)
	if err != nil {
		return nil, err
	}
	return &Port{
		port:          port,
		iface:         opts.Interface,
		proto:         proto,
		reactor:       reactor,
		family:        family,
		maxPacketSize: opts.MaxPacketSize,
		maxThroughput: opts.MaxThroughput,
		state:         stateUnbound,
		multicast:     multicast,
		logger:        opts.Logger,
	}, nil
}

func (p *Port) String() string {
	if p.realPort != 0 {
		return fmt.Sprintf("<Port on %d>", p.realPort)
	}
	return "<Port not listening>"
}

// Family returns the port's address family.
func (p *Port) Family() Family {
	return p.family
}

// LocalAddr returns the bound address. The port reflects the OS-assigned
// port when the configured port was 0.
func (p *Port) LocalAddr() Addr {
	return Addr{Host: p.iface, Port: p.realPort}
}

// Fd returns the socket descriptor for reactor registration.
func (p *Port) Fd() uintptr {
	return p.sock.Fd()
}

// StartListening binds the socket (or adopts a pre-created one) and
// registers for read-readiness with the reactor. On bind failure it
// returns a ListenError and the port stays unbound. Calling it on an
// already-bound port is a programmer error and is not guarded.
func (p *Port) StartListening() error {
	if err := p.bindSocket(); err != nil {
		return err
	}
	p.connectToProtocol()
	return nil
}

func (p *Port) bindSocket() error {
	if p.preexisting != nil {
		p.sock = p.preexisting
		p.preexisting = nil
	} else {
		sock, err := socket.New(sockFamily(p.family))
		if err != nil {
			return &ListenError{Interface: p.iface, Port: p.port, Err: err}
		}
		if p.multicast != nil {
			if err := p.multicast.configureSocket(sock); err != nil {
				sock.Close()
				return &ListenError{Interface: p.iface, Port: p.port, Err: err}
			}
		}
		if err := sock.Bind(p.iface, p.port); err != nil {
			sock.Close()
			return &ListenError{Interface: p.iface, Port: p.port, Err: err}
		}
		p.sock = sock
	}

	// If we bound port 0 record what the OS actually assigned us.
	_, realPort, err := p.sock.LocalAddr()
	if err != nil {
		p.sock.Close()
		p.sock = nil
		return &ListenError{Interface: p.iface, Port: p.port, Err: err}
	}
	p.realPort = realPort
	p.readBuf = make([]byte, p.maxPacketSize)
	p.state = stateListening

	p.logger.Info(
		"port starting",
		zap.String("interface", p.iface),
		zap.Int("port", p.realPort),
		zap.Stringer("family", p.family),
	)
	return nil
}

func (p *Port) connectToProtocol() {
	p.proto.TransportReady(p)
	p.reactor.RegisterReadable(p)
}

// OnReadable drains pending datagrams, dispatching each to the protocol,
// until either the throughput budget for this invocation is spent or a
// read would block. A fatal read error propagates to the reactor.
func (p *Port) OnReadable() error {
	read := 0
	for read < p.maxThroughput {
		n, host, port, err := p.sock.RecvFrom(p.readBuf)
		if err != nil {
			switch sockerr.Classify(err) {
			case sockerr.Ignorable:
				return nil
			case sockerr.Refused:
				if p.connectedPeer != nil {
					p.proto.ConnectionRefused()
				}
				return nil
			default:
				return err
			}
		}
		if n == 0 {
			return nil
		}
		read += n

		b := make([]byte, n)
		copy(b, p.readBuf[:n])
		p.dispatch(b, Addr{Host: host, Port: port})
	}
	return nil
}

// dispatch isolates the protocol callback: one misbehaving datagram
// handler must not abort the drain or crash the transport.
func (p *Port) dispatch(b []byte, from Addr) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(
				"protocol panicked handling datagram",
				zap.Any("panic", r),
				zap.Stringer("from", from),
			)
		}
	}()
	p.proto.DatagramReceived(b, from)
}

// Write sends a single datagram and returns the number of bytes the OS
// accepted.
//
// On a connected port to must be nil or equal to the connected peer; a
// mismatch is a programmer error reported as ErrPeerMismatch. A refused
// datagram is reported through the protocol's ConnectionRefused and Write
// returns normally.
//
// On an unconnected port to is mandatory and must be an IP literal of the
// port's family or the broadcast sentinel; hostnames are rejected with an
// InvalidAddressError before any OS call. Refusals on unconnected sends
// are unreliable across platforms and are deliberately swallowed.
func (p *Port) Write(b []byte, to *Addr) (int, error) {
	if p.connectedPeer != nil {
		return p.writeConnected(b, to)
	}
	return p.writeTo(b, to)
}

func (p *Port) writeConnected(b []byte, to *Addr) (int, error) {
	if to != nil && *to != *p.connectedPeer {
		return 0, ErrPeerMismatch
	}
	for {
		n, err := p.sock.Send(b)
		if err == nil {
			return n, nil
		}
		switch {
		case sockerr.IsEINTR(err):
			// Retry the identical write.
		case sockerr.IsEMSGSIZE(err):
			return 0, ErrMessageTooLong
		case sockerr.IsECONNREFUSED(err):
			p.proto.ConnectionRefused()
			return 0, nil
		default:
			return 0, err
		}
	}
}

func (p *Port) writeTo(b []byte, to *Addr) (int, error) {
	if to == nil {
		return 0, ErrNoDestination
	}
	if err := checkWriteAddr(to.Host, p.family); err != nil {
		return 0, err
	}
	for {
		n, err := p.sock.SendTo(b, to.Host, to.Port)
		if err == nil {
			return n, nil
		}
		switch {
		case sockerr.IsEINTR(err):
			// Retry the identical write.
		case sockerr.IsEMSGSIZE(err):
			return 0, ErrMessageTooLong
		case sockerr.IsECONNREFUSED(err):
			// Refusal on an unconnected send is platform dependent and
			// not necessarily meaningful, so it is not surfaced.
			return 0, nil
		default:
			return 0, err
		}
	}
}

// WriteSequence concatenates chunks into one datagram and sends it with
// Write.
func (p *Port) WriteSequence(chunks [][]byte, to *Addr) (int, error) {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	b := make([]byte, 0, size)
	for _, c := range chunks {
		b = append(b, c...)
	}
	return p.Write(b, to)
}

// Connect fixes the port's peer. host must be an IP literal; the OS-level
// connect restricts the socket to that single peer and enables
// connected-mode refusal delivery. Permitted exactly once per port.
func (p *Port) Connect(host string, port int) error {
	if p.connectedPeer != nil {
		return ErrAlreadyConnected
	}
	if !isIPv4Literal(host) && !isIPv6Literal(host) {
		return &InvalidAddressError{Address: host, Reason: "not an IPv4 or IPv6 address"}
	}
	p.connectedPeer = &Addr{Host: host, Port: port}
	return p.sock.Connect(host, port)
}

// SetBroadcastAllowed sets whether this port may broadcast. Disabled by
// default.
func (p *Port) SetBroadcastAllowed(enabled bool) error {
	return p.sock.SetBroadcast(enabled)
}

// BroadcastAllowed reports whether broadcast is currently allowed on this
// port.
func (p *Port) BroadcastAllowed() (bool, error) {
	return p.sock.Broadcast()
}

// StopListening deregisters from read-readiness immediately (no further
// receive callbacks fire) and schedules teardown on the reactor's next
// iteration, never synchronously, so the protocol is not stopped from
// inside the call that requested it. The returned Completion resolves
// once teardown finishes. Calling this on a port that is not listening is
// a no-op returning nil.
func (p *Port) StopListening() *Completion {
	if p.state != stateListening {
		return nil
	}
	p.state = stateStopping
	p.stopC = newCompletion()
	p.reactor.UnregisterReadable(p)
	p.reactor.ScheduleAfter(0, p.connectionLost)
	return p.stopC
}

// connectionLost tears the port down: it runs exactly once, via the
// scheduled path from StopListening.
func (p *Port) connectionLost() {
	if p.state == stateClosed {
		return
	}
	p.logger.Info("port closed", zap.Int("port", p.realPort))

	p.state = stateClosed
	p.realPort = 0
	// Disable further throughput in case a stray callback slips through.
	p.maxThroughput = -1

	p.proto.TransportStopped()

	if p.multicast != nil {
		if err := p.multicast.leaveAll(p.sock); err != nil {
			p.logger.Error("failed to leave multicast groups", zap.Error(err))
		}
	}
	if err := p.sock.Close(); err != nil {
		p.logger.Error("failed to close socket", zap.Error(err))
	}
	p.sock = nil

	if p.stopC != nil {
		p.stopC.resolve()
		p.stopC = nil
	}
}
