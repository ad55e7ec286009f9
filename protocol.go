package dgram

import (
	"net"
	"strconv"
)

// Addr is the (host, port) pair of a datagram endpoint. Host is always an
// IP literal; this layer never resolves hostnames.
type Addr struct {
	Host string
	Port int
}

func (a Addr) Network() string {
	return "udp"
}

func (a Addr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Protocol is the consumer a Port dispatches to. All callbacks are invoked
// synchronously from within the Port's own reactor callbacks, so they must
// not block.
type Protocol interface {
	// TransportReady is invoked once the port is bound and listening,
	// handing the protocol its transport.
	TransportReady(t Transport)

	// DatagramReceived is invoked for each datagram read from the socket.
	// The buffer is owned by the protocol after the call.
	DatagramReceived(b []byte, from Addr)

	// ConnectionRefused is invoked on a connected port when the OS
	// reports the peer refused a previous datagram.
	ConnectionRefused()

	// TransportStopped is invoked exactly once when the port is torn
	// down. No callbacks follow it.
	TransportStopped()
}

// Transport is the write-side surface a Port exposes to its protocol.
type Transport interface {
	// Write sends a single datagram. to must be nil on a connected port
	// (or equal to the connected peer); on an unconnected port it is
	// mandatory and must be an IP literal of the port's address family,
	// or the broadcast sentinel. Returns the number of bytes the OS
	// accepted.
	Write(b []byte, to *Addr) (int, error)

	// WriteSequence concatenates chunks into one datagram and sends it
	// with Write. Datagrams are atomic; there are no partial-datagram
	// semantics.
	WriteSequence(chunks [][]byte, to *Addr) (int, error)

	// Connect fixes the port's peer. Permitted exactly once; there is no
	// reconnection.
	Connect(host string, port int) error

	// LocalAddr returns the bound address, reflecting the OS-assigned
	// port when the port was bound to port 0.
	LocalAddr() Addr
}
