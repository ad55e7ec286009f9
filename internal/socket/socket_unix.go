//go:build unix

package socket

import (
	"net"

	"golang.org/x/sys/unix"
)

// Socket is one non-blocking SOCK_DGRAM descriptor. It is exclusively
// owned by its creator and not safe for concurrent use; the transport
// drives it from a single event-loop goroutine.
type Socket struct {
	fd     int
	family Family
}

// New creates a non-blocking, close-on-exec datagram socket of the given
// family.
func New(family Family) (*Socket, error) {
	domain := unix.AF_INET
	if family == IPv6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Socket{fd: fd, family: family}, nil
}

// FromFd adopts an externally created descriptor. The descriptor must
// already be bound and in non-blocking mode.
func FromFd(fd uintptr, family Family) *Socket {
	return &Socket{fd: int(fd), family: family}
}

func (s *Socket) Fd() uintptr {
	return uintptr(s.fd)
}

func (s *Socket) Family() Family {
	return s.family
}

func (s *Socket) Bind(host string, port int) error {
	sa, err := s.sockaddr(host, port)
	if err != nil {
		return err
	}
	return unix.Bind(s.fd, sa)
}

// LocalAddr returns the bound address. For IPv6 the scope is dropped.
func (s *Socket) LocalAddr() (string, int, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return "", 0, err
	}
	host, port := fromSockaddr(sa)
	return host, port, nil
}

// RecvFrom reads a single datagram. The source is reduced to (host, port);
// IPv6 flow and scope metadata is discarded.
func (s *Socket) RecvFrom(b []byte) (int, string, int, error) {
	n, from, err := unix.Recvfrom(s.fd, b, 0)
	if err != nil {
		return 0, "", 0, err
	}
	host, port := fromSockaddr(from)
	return n, host, port, nil
}

// Send writes a datagram to the connected peer.
func (s *Socket) Send(b []byte) (int, error) {
	return unix.Write(s.fd, b)
}

// SendTo writes a datagram to an explicit destination.
func (s *Socket) SendTo(b []byte, host string, port int) (int, error) {
	sa, err := s.sockaddr(host, port)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(s.fd, b, 0, sa); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Connect fixes the socket's peer, restricting it to that single remote
// and enabling refusal reporting on subsequent operations.
func (s *Socket) Connect(host string, port int) error {
	sa, err := s.sockaddr(host, port)
	if err != nil {
		return err
	}
	return unix.Connect(s.fd, sa)
}

func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

func (s *Socket) SetBroadcast(enabled bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_BROADCAST, boolInt(enabled))
}

func (s *Socket) Broadcast() (bool, error) {
	v, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_BROADCAST)
	return v != 0, err
}

func (s *Socket) SetReuseAddr() error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// SetReusePort enables load-balanced binds of the same address. Platforms
// may define SO_REUSEPORT yet reject it with ENOPROTOOPT; callers decide
// whether that is fatal.
func (s *Socket) SetReusePort() error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// JoinGroup joins a multicast group on the interface given by name or IP
// literal ("" for the default interface).
func (s *Socket) JoinGroup(group, iface string) error {
	if s.family == IPv6 {
		mreq, err := s.ipv6Mreq(group, iface)
		if err != nil {
			return err
		}
		return unix.SetsockoptIPv6Mreq(s.fd, unix.IPPROTO_IPV6, unix.IPV6_JOIN_GROUP, mreq)
	}
	mreq, err := s.ipv4Mreq(group, iface)
	if err != nil {
		return err
	}
	return unix.SetsockoptIPMreq(s.fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
}

// LeaveGroup leaves a previously joined multicast group.
func (s *Socket) LeaveGroup(group, iface string) error {
	if s.family == IPv6 {
		mreq, err := s.ipv6Mreq(group, iface)
		if err != nil {
			return err
		}
		return unix.SetsockoptIPv6Mreq(s.fd, unix.IPPROTO_IPV6, unix.IPV6_LEAVE_GROUP, mreq)
	}
	mreq, err := s.ipv4Mreq(group, iface)
	if err != nil {
		return err
	}
	return unix.SetsockoptIPMreq(s.fd, unix.IPPROTO_IP, unix.IP_DROP_MEMBERSHIP, mreq)
}

func (s *Socket) SetMulticastTTL(ttl int) error {
	if s.family == IPv6 {
		return unix.SetsockoptInt(s.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_HOPS, ttl)
	}
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl)
}

func (s *Socket) MulticastTTL() (int, error) {
	if s.family == IPv6 {
		return unix.GetsockoptInt(s.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_HOPS)
	}
	return unix.GetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL)
}

func (s *Socket) SetMulticastLoopback(enabled bool) error {
	if s.family == IPv6 {
		return unix.SetsockoptInt(s.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_LOOP, boolInt(enabled))
	}
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, boolInt(enabled))
}

func (s *Socket) MulticastLoopback() (bool, error) {
	var (
		v   int
		err error
	)
	if s.family == IPv6 {
		v, err = unix.GetsockoptInt(s.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_LOOP)
	} else {
		v, err = unix.GetsockoptInt(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP)
	}
	return v != 0, err
}

// SetMulticastInterface selects the egress interface for multicast sends.
func (s *Socket) SetMulticastInterface(iface string) error {
	if s.family == IPv6 {
		index, err := ifaceIndex(iface)
		if err != nil {
			return err
		}
		return unix.SetsockoptInt(s.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_IF, index)
	}
	addr, err := ifaceIPv4(iface)
	if err != nil {
		return err
	}
	return unix.SetsockoptInet4Addr(s.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, addr)
}

func (s *Socket) sockaddr(host string, port int) (unix.Sockaddr, error) {
	if s.family == IPv6 {
		addr, err := parseIPv6(host)
		if err != nil {
			return nil, err
		}
		sa := &unix.SockaddrInet6{Addr: addr, Port: port}
		if _, zone := splitZone(host); zone != "" {
			index, err := ifaceIndex(zone)
			if err != nil {
				return nil, err
			}
			sa.ZoneId = uint32(index)
		}
		return sa, nil
	}
	addr, err := parseIPv4(host)
	if err != nil {
		return nil, err
	}
	return &unix.SockaddrInet4{Addr: addr, Port: port}, nil
}

func (s *Socket) ipv4Mreq(group, iface string) (*unix.IPMreq, error) {
	g, err := parseIPv4(group)
	if err != nil {
		return nil, err
	}
	i, err := ifaceIPv4(iface)
	if err != nil {
		return nil, err
	}
	return &unix.IPMreq{Multiaddr: g, Interface: i}, nil
}

func (s *Socket) ipv6Mreq(group, iface string) (*unix.IPv6Mreq, error) {
	g, err := parseIPv6(group)
	if err != nil {
		return nil, err
	}
	index, err := ifaceIndex(iface)
	if err != nil {
		return nil, err
	}
	return &unix.IPv6Mreq{Multiaddr: g, Interface: uint32(index)}, nil
}

func fromSockaddr(sa unix.Sockaddr) (string, int) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(sa.Addr[:]).String(), sa.Port
	case *unix.SockaddrInet6:
		// Reduce to (host, port); flow and scope are dropped.
		return net.IP(sa.Addr[:]).String(), sa.Port
	default:
		return "", 0
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
