// Package sockerr classifies raw socket error codes into the portable
// categories the transport reasons in. The tables are per platform family
// and resolved at compile time; everything above this package is platform
// neutral.
package sockerr

import (
	"errors"
	"syscall"
)

// Class is the portable category of a read-path socket error.
type Class int

const (
	// Fatal errors are outside the known tables and must propagate to
	// the caller unchanged, never swallowed.
	Fatal Class = iota

	// Ignorable errors are transient (would-block, interrupted call);
	// the current work unit simply ends and resumes on the next
	// readiness event.
	Ignorable

	// Refused errors indicate the peer refused a previous datagram.
	Refused
)

func (c Class) String() string {
	switch c {
	case Ignorable:
		return "ignorable"
	case Refused:
		return "refused"
	default:
		return "fatal"
	}
}

// Classify maps a read-path error to its portable class. Any error that
// does not carry a known errno classifies as Fatal.
func Classify(err error) Class {
	no, ok := errnoOf(err)
	if !ok {
		return Fatal
	}
	if _, ok := readIgnore[no]; ok {
		return Ignorable
	}
	if _, ok := readRefuse[no]; ok {
		return Refused
	}
	return Fatal
}

func errnoOf(err error) (syscall.Errno, bool) {
	var no syscall.Errno
	if errors.As(err, &no) {
		return no, true
	}
	return 0, false
}

func is(err error, no syscall.Errno) bool {
	got, ok := errnoOf(err)
	return ok && got == no
}

// errnoSet builds a lookup set from a list of errnos. The tables are
// declared as lists because some names alias the same code (EWOULDBLOCK
// is EAGAIN on most platforms), which a map literal cannot express.
func errnoSet(nos ...syscall.Errno) map[syscall.Errno]struct{} {
	set := make(map[syscall.Errno]struct{}, len(nos))
	for _, no := range nos {
		set[no] = struct{}{}
	}
	return set
}
