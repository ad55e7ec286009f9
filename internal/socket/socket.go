// Package socket wraps one non-blocking datagram socket behind a platform
// neutral API. I/O errors are returned unwrapped so callers can classify
// the raw OS code.
package socket

import (
	"fmt"
	"net"
	"strings"
)

// Family is the address family of a socket, fixed at creation.
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

// Broadcast is the sentinel host addressing the IPv4 limited-broadcast
// address.
const Broadcast = "<broadcast>"

func parseIPv4(host string) ([4]byte, error) {
	var addr [4]byte
	if host == "" {
		return addr, nil
	}
	if host == Broadcast {
		return [4]byte{255, 255, 255, 255}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return addr, fmt.Errorf("not an IPv4 address: %q", host)
	}
	copy(addr[:], ip.To4())
	return addr, nil
}

// parseIPv6 accepts any literal containing ":", which includes
// IPv4-mapped forms such as "::ffff:1.2.3.4". A %zone suffix is stripped;
// callers that need the zone split it off themselves.
func parseIPv6(host string) ([16]byte, error) {
	var addr [16]byte
	if host == "" {
		return addr, nil
	}
	host, _ = splitZone(host)
	ip := net.ParseIP(host)
	if ip == nil || !strings.Contains(host, ":") {
		return addr, fmt.Errorf("not an IPv6 address: %q", host)
	}
	copy(addr[:], ip.To16())
	return addr, nil
}

// splitZone separates an IPv6 literal from its %zone suffix.
func splitZone(host string) (string, string) {
	if i := strings.IndexByte(host, '%'); i != -1 {
		return host[:i], host[i+1:]
	}
	return host, ""
}

// ifaceIPv4 resolves a multicast interface given by name or IPv4 literal
// to an address. Empty means the default interface (0.0.0.0).
func ifaceIPv4(iface string) ([4]byte, error) {
	addr, parseErr := parseIPv4(iface)
	if parseErr == nil {
		return addr, nil
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return addr, parseErr
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return addr, err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok {
			if v4 := ipnet.IP.To4(); v4 != nil {
				copy(addr[:], v4)
				return addr, nil
			}
		}
	}
	return addr, fmt.Errorf("no IPv4 address on interface %q", iface)
}

// ifaceIndex resolves a multicast interface given by name or IP literal to
// its OS index. Empty means the default interface (index 0).
func ifaceIndex(iface string) (int, error) {
	if iface == "" {
		return 0, nil
	}
	if ifi, err := net.InterfaceByName(iface); err == nil {
		return ifi.Index, nil
	}
	ip := net.ParseIP(iface)
	if ip == nil {
		return 0, fmt.Errorf("unknown interface: %q", iface)
	}
	ifis, err := net.Interfaces()
	if err != nil {
		return 0, err
	}
	for _, ifi := range ifis {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.Equal(ip) {
				return ifi.Index, nil
			}
		}
	}
	return 0, fmt.Errorf("no interface with address %q", iface)
}
