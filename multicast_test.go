package dgram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestMulticastPort(t *testing.T, port int, options ...Option) (*MulticastPort, *channelProtocol, *MockReactor) {
	proto := newChannelProtocol()
	reactor := NewMockReactor()
	options = append([]Option{
		WithInterface("127.0.0.1"),
		WithLogger(zap.NewNop()),
	}, options...)
	p, err := NewMulticastPort(port, proto, reactor, options...)
	assert.Nil(t, err)
	return p, proto, reactor
}

func TestMulticastPort_ListenMultiple(t *testing.T) {
	// With multi-listener mode two ports can bind the same address
	// concurrently.
	port1, _, reactor1 := newTestMulticastPort(t, 0, WithListenMultiple(true))
	assert.Nil(t, port1.StartListening())
	defer func() {
		port1.StopListening()
		reactor1.Advance(0)
	}()

	port2, _, reactor2 := newTestMulticastPort(
		t, port1.LocalAddr().Port, WithListenMultiple(true),
	)
	assert.Nil(t, port2.StartListening())
	defer func() {
		port2.StopListening()
		reactor2.Advance(0)
	}()

	assert.Equal(t, port1.LocalAddr().Port, port2.LocalAddr().Port)
}

func TestMulticastPort_TTL(t *testing.T) {
	port, _, reactor := newTestMulticastPort(t, 0)
	assert.Nil(t, port.StartListening())
	defer func() {
		port.StopListening()
		reactor.Advance(0)
	}()

	assert.Nil(t, port.SetTTL(4))
	ttl, err := port.TTL()
	assert.Nil(t, err)
	assert.Equal(t, 4, ttl)
}

func TestMulticastPort_Loopback(t *testing.T) {
	port, _, reactor := newTestMulticastPort(t, 0)
	assert.Nil(t, port.StartListening())
	defer func() {
		port.StopListening()
		reactor.Advance(0)
	}()

	assert.Nil(t, port.SetLoopback(false))
	enabled, err := port.Loopback()
	assert.Nil(t, err)
	assert.False(t, enabled)

	assert.Nil(t, port.SetLoopback(true))
	enabled, err = port.Loopback()
	assert.Nil(t, err)
	assert.True(t, enabled)
}

func TestMulticastPort_JoinGroup(t *testing.T) {
	port, _, reactor := newTestMulticastPort(t, 0)

	// Joining requires a listening port.
	assert.Equal(t, ErrNotListening, port.JoinGroup("239.255.0.1", "127.0.0.1"))

	assert.Nil(t, port.StartListening())
	defer func() {
		port.StopListening()
		reactor.Advance(0)
	}()

	var invalidErr *InvalidAddressError
	assert.ErrorAs(t, port.JoinGroup("not-a-group", "127.0.0.1"), &invalidErr)

	assert.Nil(t, port.JoinGroup("239.255.0.1", "127.0.0.1"))
	assert.Nil(t, port.LeaveGroup("239.255.0.1", "127.0.0.1"))
}

func TestMulticastPort_LoopbackDelivery(t *testing.T) {
	port, proto, reactor := newTestMulticastPort(t, 0, WithInterface(""))
	assert.Nil(t, port.StartListening())
	defer func() {
		port.StopListening()
		reactor.Advance(0)
	}()

	group := "239.255.0.2"
	assert.Nil(t, port.JoinGroup(group, "127.0.0.1"))
	assert.Nil(t, port.SetOutgoingInterface("127.0.0.1"))
	assert.Nil(t, port.SetLoopback(true))

	to := Addr{Host: group, Port: port.LocalAddr().Port}
	_, err := port.Write([]byte("multicast"), &to)
	assert.Nil(t, err)

	d, ok := pumpDatagram(t, reactor, proto, time.Second*3)
	assert.True(t, ok)
	assert.Equal(t, []byte("multicast"), d.B)
}
