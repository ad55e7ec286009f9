//go:build unix

package tests

import (
	"testing"
	"time"

	"github.com/andydunstall/dgram"
	"github.com/stretchr/testify/assert"
)

// Tests a connected port and an unconnected port exchanging datagrams
// over loopback under a running reactor.
func TestTransport_PingPong(t *testing.T) {
	loop, err := NewLoop()
	assert.Nil(t, err)
	defer loop.Shutdown()

	portA, protoA, err := loop.AddPort("127.0.0.1")
	assert.Nil(t, err)
	portB, protoB, err := loop.AddPort("127.0.0.1")
	assert.Nil(t, err)
	defer loop.StopPorts(portA, portB)

	addrA := portA.LocalAddr()
	addrB := portB.LocalAddr()

	// A connects to B and writes with no destination.
	loop.Call(func() {
		assert.Nil(t, portA.Connect(addrB.Host, addrB.Port))
		_, err := portA.Write([]byte("ping"), nil)
		assert.Nil(t, err)
	})

	d, ok := protoB.WaitDatagramWithTimeout(time.Second * 3)
	assert.True(t, ok)
	assert.Equal(t, []byte("ping"), d.B)
	assert.Equal(t, addrA, d.From)

	// B replies to A's bound address explicitly.
	loop.Call(func() {
		_, err := portB.Write([]byte("pong"), &d.From)
		assert.Nil(t, err)
	})

	d, ok = protoA.WaitDatagramWithTimeout(time.Second * 3)
	assert.True(t, ok)
	assert.Equal(t, []byte("pong"), d.B)
	assert.Equal(t, addrB, d.From)
}

func TestTransport_IPv6RejectsIPv4Destination(t *testing.T) {
	loop, err := NewLoop()
	assert.Nil(t, err)
	defer loop.Shutdown()

	port, _, err := loop.AddPort("::1")
	assert.Nil(t, err)
	defer loop.StopPorts(port)

	var writeErr error
	loop.Call(func() {
		_, writeErr = port.Write([]byte("x"), &dgram.Addr{Host: "1.2.3.4", Port: 8119})
	})

	var invalidErr *dgram.InvalidAddressError
	assert.ErrorAs(t, writeErr, &invalidErr)
}

func TestTransport_StopResolvesOnce(t *testing.T) {
	loop, err := NewLoop()
	assert.Nil(t, err)
	defer loop.Shutdown()

	port, proto, err := loop.AddPort("127.0.0.1")
	assert.Nil(t, err)

	var first, second *dgram.Completion
	loop.Call(func() {
		first = port.StopListening()
		// A second stop before teardown runs is a no-op.
		second = port.StopListening()
	})
	assert.NotNil(t, first)
	assert.Nil(t, second)

	select {
	case <-first.Done():
	case <-time.After(time.Second * 3):
		t.Fatal("timed out waiting for stop to complete")
	}

	// Exactly one stop notification.
	assert.True(t, proto.WaitStoppedWithTimeout(time.Second*3))
	assert.False(t, proto.WaitStoppedWithTimeout(time.Millisecond*100))
}

func TestTransport_NoDispatchAfterStop(t *testing.T) {
	loop, err := NewLoop()
	assert.Nil(t, err)
	defer loop.Shutdown()

	portA, _, err := loop.AddPort("127.0.0.1")
	assert.Nil(t, err)
	portB, protoB, err := loop.AddPort("127.0.0.1")
	assert.Nil(t, err)
	defer loop.StopPorts(portA)

	addrB := portB.LocalAddr()

	// Stop B then write to its old address; nothing must be dispatched.
	assert.Nil(t, loop.StopPorts(portB))
	loop.Call(func() {
		_, err := portA.Write([]byte("late"), &addrB)
		assert.Nil(t, err)
	})

	_, ok := protoB.WaitDatagramWithTimeout(time.Millisecond * 200)
	assert.False(t, ok)
}
