//go:build unix

package sockerr

import (
	"golang.org/x/sys/unix"
)

// Read-path tables for POSIX platforms. EWOULDBLOCK is listed alongside
// EAGAIN for the platforms where they are distinct codes.
var (
	readIgnore = errnoSet(unix.EAGAIN, unix.EINTR, unix.EWOULDBLOCK)

	readRefuse = errnoSet(unix.ECONNREFUSED)
)

// IsEINTR reports an interrupted call: on the write path the identical
// write is retried immediately.
func IsEINTR(err error) bool {
	return is(err, unix.EINTR)
}

// IsEMSGSIZE reports a datagram the OS refused as too large.
func IsEMSGSIZE(err error) bool {
	return is(err, unix.EMSGSIZE)
}

// IsECONNREFUSED reports a refused datagram on the write path.
func IsECONNREFUSED(err error) bool {
	return is(err, unix.ECONNREFUSED)
}

// IsENOPROTOOPT reports an unsupported socket option. Some platforms
// define SO_REUSEPORT but reject setting it with this code.
func IsENOPROTOOPT(err error) bool {
	return is(err, unix.ENOPROTOOPT)
}
