package dgram

import (
	"net"
	"strings"

	"github.com/andydunstall/dgram/internal/socket"
)

// broadcastSentinel is the destination host accepted by Write to address
// the IPv4 limited-broadcast address. Broadcast must be enabled on the
// port first (see SetBroadcastAllowed).
const broadcastSentinel = socket.Broadcast

// isIPv4Literal reports whether s is a dotted-quad IPv4 literal.
func isIPv4Literal(s string) bool {
	if strings.Contains(s, ":") {
		return false
	}
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}

// isIPv6Literal reports whether s is an IPv6 literal, including
// IPv4-mapped forms and literals carrying a %zone suffix.
func isIPv6Literal(s string) bool {
	if i := strings.IndexByte(s, '%'); i != -1 {
		s = s[:i]
	}
	if !strings.Contains(s, ":") {
		return false
	}
	return net.ParseIP(s) != nil
}

// checkWriteAddr validates a write destination against the port's address
// family. Hostnames are rejected; callers resolve names themselves.
func checkWriteAddr(host string, family Family) error {
	v4 := isIPv4Literal(host)
	v6 := isIPv6Literal(host)
	broadcast := host == broadcastSentinel
	if !v4 && !v6 && !broadcast {
		return &InvalidAddressError{
			Address: host,
			Reason:  "write only accepts IP addresses, not hostnames",
		}
	}
	if (v4 || broadcast) && family == IPv6 {
		return &InvalidAddressError{
			Address: host,
			Reason:  "IPv6 port write called with IPv4 or broadcast address",
		}
	}
	if v6 && family == IPv4 {
		return &InvalidAddressError{
			Address: host,
			Reason:  "IPv4 port write called with IPv6 address",
		}
	}
	return nil
}

// familyOf derives the address family from a bind interface. An empty
// interface binds all IPv4 addresses.
func familyOf(iface string) (Family, error) {
	if isIPv6Literal(iface) {
		return IPv6, nil
	}
	if iface == "" || isIPv4Literal(iface) {
		return IPv4, nil
	}
	return IPv4, &InvalidAddressError{
		Address: iface,
		Reason:  "not an IPv4 or IPv6 address",
	}
}
