//go:build windows

package socket

import (
	"net"
	"sync"
	"syscall"
)

// The winsock socket surface (Socket, Recvfrom, WSA errnos) lives in the
// standard syscall package on windows rather than x/sys.

var wsaOnce sync.Once

func wsaStartup() {
	wsaOnce.Do(func() {
		var d syscall.WSAData
		_ = syscall.WSAStartup(uint32(0x202), &d)
	})
}

// Socket is one non-blocking SOCK_DGRAM descriptor. It is exclusively
// owned by its creator and not safe for concurrent use; the transport
// drives it from a single event-loop goroutine.
type Socket struct {
	fd     syscall.Handle
	family Family
}

// New creates a non-blocking datagram socket of the given family.
func New(family Family) (*Socket, error) {
	wsaStartup()
	domain := syscall.AF_INET
	if family == IPv6 {
		domain = syscall.AF_INET6
	}
	fd, err := syscall.Socket(domain, syscall.SOCK_DGRAM, syscall.IPPROTO_UDP)
	if err != nil {
		return nil, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Closesocket(fd)
		return nil, err
	}
	return &Socket{fd: fd, family: family}, nil
}

// FromFd adopts an externally created descriptor. The descriptor must
// already be bound and in non-blocking mode.
func FromFd(fd uintptr, family Family) *Socket {
	wsaStartup()
	return &Socket{fd: syscall.Handle(fd), family: family}
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
	return syscall.Bind(s.fd, sa)
}

// LocalAddr returns the bound address. For IPv6 the scope is dropped.
func (s *Socket) LocalAddr() (string, int, error) {
	sa, err := syscall.Getsockname(s.fd)
	if err != nil {
		return "", 0, err
	}
	host, port := fromSockaddr(sa)
	return host, port, nil
}

// RecvFrom reads a single datagram. The source is reduced to (host, port);
// IPv6 flow and scope metadata is discarded.
func (s *Socket) RecvFrom(b []byte) (int, string, int, error) {
	n, from, err := syscall.Recvfrom(s.fd, b, 0)
	if err != nil {
		return 0, "", 0, err
	}
	host, port := fromSockaddr(from)
	return n, host, port, nil
}

// Send writes a datagram to the connected peer. Winsock has no exported
// send(2) wrapper so this goes through WSASend.
func (s *Socket) Send(b []byte) (int, error) {
	var buf syscall.WSABuf
	if len(b) > 0 {
		buf.Buf = &b[0]
	}
	buf.Len = uint32(len(b))
	var sent uint32
	err := syscall.WSASend(s.fd, &buf, 1, &sent, 0, nil, nil)
	if err != nil {
		return 0, err
	}
	return int(sent), nil
}

// SendTo writes a datagram to an explicit destination.
func (s *Socket) SendTo(b []byte, host string, port int) (int, error) {
	sa, err := s.sockaddr(host, port)
	if err != nil {
		return 0, err
	}
	if err := syscall.Sendto(s.fd, b, 0, sa); err != nil {
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
	return syscall.Connect(s.fd, sa)
}

func (s *Socket) Close() error {
	return syscall.Closesocket(s.fd)
}

func (s *Socket) SetBroadcast(enabled bool) error {
	return syscall.SetsockoptInt(s.fd, syscall.SOL_SOCKET, syscall.SO_BROADCAST, boolInt(enabled))
}

func (s *Socket) Broadcast() (bool, error) {
	v, err := syscall.GetsockoptInt(s.fd, syscall.SOL_SOCKET, syscall.SO_BROADCAST)
	return v != 0, err
}

func (s *Socket) SetReuseAddr() error {
	return syscall.SetsockoptInt(s.fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}

// SetReusePort has no winsock equivalent; SO_REUSEADDR already permits
// multiple multicast listeners there.
func (s *Socket) SetReusePort() error {
	return nil
}

// JoinGroup joins a multicast group on the interface given by name or IP
// literal ("" for the default interface).
func (s *Socket) JoinGroup(group, iface string) error {
	if s.family == IPv6 {
		mreq, err := s.ipv6Mreq(group, iface)
		if err != nil {
			return err
		}
		return syscall.SetsockoptIPv6Mreq(s.fd, syscall.IPPROTO_IPV6, syscall.IPV6_JOIN_GROUP, mreq)
	}
	mreq, err := s.ipv4Mreq(group, iface)
	if err != nil {
		return err
	}
	return syscall.SetsockoptIPMreq(s.fd, syscall.IPPROTO_IP, syscall.IP_ADD_MEMBERSHIP, mreq)
}

// LeaveGroup leaves a previously joined multicast group.
func (s *Socket) LeaveGroup(group, iface string) error {
	if s.family == IPv6 {
		mreq, err := s.ipv6Mreq(group, iface)
		if err != nil {
			return err
		}
		return syscall.SetsockoptIPv6Mreq(s.fd, syscall.IPPROTO_IPV6, syscall.IPV6_LEAVE_GROUP, mreq)
	}
	mreq, err := s.ipv4Mreq(group, iface)
	if err != nil {
		return err
	}
	return syscall.SetsockoptIPMreq(s.fd, syscall.IPPROTO_IP, syscall.IP_DROP_MEMBERSHIP, mreq)
}

func (s *Socket) SetMulticastTTL(ttl int) error {
	if s.family == IPv6 {
		return syscall.SetsockoptInt(s.fd, syscall.IPPROTO_IPV6, syscall.IPV6_MULTICAST_HOPS, ttl)
	}
	return syscall.SetsockoptInt(s.fd, syscall.IPPROTO_IP, syscall.IP_MULTICAST_TTL, ttl)
}

func (s *Socket) MulticastTTL() (int, error) {
	if s.family == IPv6 {
		return syscall.GetsockoptInt(s.fd, syscall.IPPROTO_IPV6, syscall.IPV6_MULTICAST_HOPS)
	}
	return syscall.GetsockoptInt(s.fd, syscall.IPPROTO_IP, syscall.IP_MULTICAST_TTL)
}

func (s *Socket) SetMulticastLoopback(enabled bool) error {
	if s.family == IPv6 {
		return syscall.SetsockoptInt(s.fd, syscall.IPPROTO_IPV6, syscall.IPV6_MULTICAST_LOOP, boolInt(enabled))
	}
	return syscall.SetsockoptInt(s.fd, syscall.IPPROTO_IP, syscall.IP_MULTICAST_LOOP, boolInt(enabled))
}

func (s *Socket) MulticastLoopback() (bool, error) {
	var (
		v   int
		err error
	)
	if s.family == IPv6 {
		v, err = syscall.GetsockoptInt(s.fd, syscall.IPPROTO_IPV6, syscall.IPV6_MULTICAST_LOOP)
	} else {
		v, err = syscall.GetsockoptInt(s.fd, syscall.IPPROTO_IP, syscall.IP_MULTICAST_LOOP)
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
		return syscall.SetsockoptInt(s.fd, syscall.IPPROTO_IPV6, syscall.IPV6_MULTICAST_IF, index)
	}
	addr, err := ifaceIPv4(iface)
	if err != nil {
		return err
	}
	return syscall.SetsockoptInet4Addr(s.fd, syscall.IPPROTO_IP, syscall.IP_MULTICAST_IF, addr)
}

func (s *Socket) sockaddr(host string, port int) (syscall.Sockaddr, error) {
	if s.family == IPv6 {
		addr, err := parseIPv6(host)
		if err != nil {
			return nil, err
		}
		sa := &syscall.SockaddrInet6{Addr: addr, Port: port}
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
	return &syscall.SockaddrInet4{Addr: addr, Port: port}, nil
}

func (s *Socket) ipv4Mreq(group, iface string) (*syscall.IPMreq, error) {
	g, err := parseIPv4(group)
	if err != nil {
		return nil, err
	}
	i, err := ifaceIPv4(iface)
	if err != nil {
		return nil, err
	}
	return &syscall.IPMreq{Multiaddr: g, Interface: i}, nil
}

func (s *Socket) ipv6Mreq(group, iface string) (*syscall.IPv6Mreq, error) {
	g, err := parseIPv6(group)
	if err != nil {
		return nil, err
	}
	index, err := ifaceIndex(iface)
	if err != nil {
		return nil, err
	}
	return &syscall.IPv6Mreq{Multiaddr: g, Interface: uint32(index)}, nil
}

func fromSockaddr(sa syscall.Sockaddr) (string, int) {
	switch sa := sa.(type) {
	case *syscall.SockaddrInet4:
		return net.IP(sa.Addr[:]).String(), sa.Port
	case *syscall.SockaddrInet6:
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
