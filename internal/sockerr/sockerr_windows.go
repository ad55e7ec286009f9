//go:build windows

package sockerr

import (
	"syscall"
)

// Read-path tables for winsock. The WSA codes are the platform-specific
// spellings of the POSIX set, plus the winsock-only cases (message-size
// and reset conditions are reported on reads there).
var (
	readIgnore = errnoSet(
		syscall.WSAEINTR,
		syscall.WSAEWOULDBLOCK,
		syscall.WSAEMSGSIZE,
		syscall.WSAEINPROGRESS,
	)

	readRefuse = errnoSet(
		syscall.WSAECONNREFUSED,
		syscall.WSAECONNRESET,
		syscall.WSAENETRESET,
		syscall.WSAETIMEDOUT,
	)
)

// IsEINTR reports an interrupted call: on the write path the identical
// write is retried immediately.
func IsEINTR(err error) bool {
	return is(err, syscall.WSAEINTR)
}

// IsEMSGSIZE reports a datagram the OS refused as too large.
func IsEMSGSIZE(err error) bool {
	return is(err, syscall.WSAEMSGSIZE)
}

// IsECONNREFUSED reports a refused datagram on the write path.
func IsECONNREFUSED(err error) bool {
	return is(err, syscall.WSAECONNREFUSED)
}

// IsENOPROTOOPT reports an unsupported socket option.
func IsENOPROTOOPT(err error) bool {
	return is(err, syscall.WSAENOPROTOOPT)
}
