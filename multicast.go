package dgram

import (
	"github.com/andydunstall/dgram/internal/sockerr"
	"github.com/andydunstall/dgram/internal/socket"

	multierror "github.com/hashicorp/go-multierror"
)

// multicastCapability holds the multicast-specific state and socket
// option logic composed onto a Port. The Port invokes it at socket
// creation time; the MulticastPort exposes its controls.
type multicastCapability struct {
	listenMultiple bool

	// joined tracks group memberships so they can be released on
	// teardown.
	joined []membership
}

type membership struct {
	group string
	iface string
}

// configureSocket runs before bind. With listenMultiple set it enables
// address reuse, and port reuse where the platform supports it, so
// multiple ports can listen on the same multicast group concurrently.
func (c *multicastCapability) configureSocket(sock *socket.Socket) error {
	if !c.listenMultiple {
		return nil
	}
	if err := sock.SetReuseAddr(); err != nil {
		return err
	}
	if err := sock.SetReusePort(); err != nil {
		// Some platforms define SO_REUSEPORT but reject setting it.
		// That is a known-benign limitation, not a listen failure.
		if !sockerr.IsENOPROTOOPT(err) {
			return err
		}
	}
	return nil
}

func (c *multicastCapability) join(sock *socket.Socket, group, iface string) error {
	if err := sock.JoinGroup(group, iface); err != nil {
		return err
	}
	c.joined = append(c.joined, membership{group: group, iface: iface})
	return nil
}

func (c *multicastCapability) leave(sock *socket.Socket, group, iface string) error {
	if err := sock.LeaveGroup(group, iface); err != nil {
		return err
	}
	for i, m := range c.joined {
		if m.group == group && m.iface == iface {
			c.joined = append(c.joined[:i], c.joined[i+1:]...)
			break
		}
	}
	return nil
}

func (c *multicastCapability) leaveAll(sock *socket.Socket) error {
	var errs error
	for _, m := range c.joined {
		if err := sock.LeaveGroup(m.group, m.iface); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	c.joined = nil
	return errs
}

// MulticastPort is a Port that additionally supports multicast group
// membership and delivery controls.
type MulticastPort struct {
	*Port
	capability *multicastCapability
}

// NewMulticastPort creates an unbound multicast Port. With
// WithListenMultiple the socket is created with address (and, where
// supported, port) reuse enabled so several ports can listen on the same
// group concurrently.
func NewMulticastPort(port int, proto Protocol, reactor Reactor, options ...Option) (*MulticastPort, error) {
	opts := defaultOptions()
	for _, opt := range options {
		opt(opts)
	}

	capability := &multicastCapability{listenMultiple: opts.ListenMultiple}
	p, err := newPort(port, proto, reactor, capability, opts)
	if err != nil {
		return nil, err
	}
	return &MulticastPort{
		Port:       p,
		capability: capability,
	}, nil
}

// JoinGroup joins a multicast group on the interface given by name or IP
// literal ("" for the default interface).
func (p *MulticastPort) JoinGroup(group, iface string) error {
	if p.state != stateListening {
		return ErrNotListening
	}
	if !isIPv4Literal(group) && !isIPv6Literal(group) {
		return &InvalidAddressError{Address: group, Reason: "not an IPv4 or IPv6 address"}
	}
	return p.capability.join(p.sock, group, iface)
}

// LeaveGroup leaves a previously joined multicast group.
func (p *MulticastPort) LeaveGroup(group, iface string) error {
	if p.state != stateListening {
		return ErrNotListening
	}
	return p.capability.leave(p.sock, group, iface)
}

// SetTTL sets the time-to-live (hop limit on IPv6) of outgoing multicast
// datagrams.
func (p *MulticastPort) SetTTL(ttl int) error {
	return p.sock.SetMulticastTTL(ttl)
}

// TTL returns the time-to-live of outgoing multicast datagrams.
func (p *MulticastPort) TTL() (int, error) {
	return p.sock.MulticastTTL()
}

// SetLoopback sets whether multicast datagrams sent from this port are
// looped back to local members of the group.
func (p *MulticastPort) SetLoopback(enabled bool) error {
	return p.sock.SetMulticastLoopback(enabled)
}

// Loopback reports whether multicast loopback is enabled.
func (p *MulticastPort) Loopback() (bool, error) {
	return p.sock.MulticastLoopback()
}

// SetOutgoingInterface selects the egress interface for multicast sends,
// given by name or IP literal.
func (p *MulticastPort) SetOutgoingInterface(iface string) error {
	return p.sock.SetMulticastInterface(iface)
}
