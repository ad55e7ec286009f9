package dgram

import (
	"errors"
	"fmt"
)

var (
	// ErrMessageTooLong is returned by Write when the OS rejects a
	// datagram larger than it is willing to send.
	ErrMessageTooLong = errors.New("message too long")

	// ErrAlreadyConnected is returned by Connect when the port already
	// has a peer. Reconnecting is not supported.
	ErrAlreadyConnected = errors.New("already connected, reconnecting is not supported")

	// ErrPeerMismatch is returned by Write on a connected port when the
	// destination does not match the connected peer.
	ErrPeerMismatch = errors.New("write destination does not match connected peer")

	// ErrNoDestination is returned by Write on an unconnected port when
	// no destination is given.
	ErrNoDestination = errors.New("write on unconnected port requires a destination")

	// ErrNotListening is returned by operations that require a bound,
	// listening port.
	ErrNotListening = errors.New("port is not listening")
)

// ListenError is returned by StartListening when the socket cannot be
// created or bound.
type ListenError struct {
	Interface string
	Port      int
	Err       error
}

func (e *ListenError) Error() string {
	return fmt.Sprintf("failed to listen on %s:%d: %v", e.Interface, e.Port, e.Err)
}

func (e *ListenError) Unwrap() error {
	return e.Err
}

// InvalidAddressError is returned when an address is rejected before any
// OS call is made.
type InvalidAddressError struct {
	Address string
	Reason  string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Address, e.Reason)
}
