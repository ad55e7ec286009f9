package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIPv4(t *testing.T) {
	addr, err := parseIPv4("10.26.104.1")
	assert.Nil(t, err)
	assert.Equal(t, [4]byte{10, 26, 104, 1}, addr)

	// Empty means the wildcard address.
	addr, err = parseIPv4("")
	assert.Nil(t, err)
	assert.Equal(t, [4]byte{0, 0, 0, 0}, addr)

	addr, err = parseIPv4(Broadcast)
	assert.Nil(t, err)
	assert.Equal(t, [4]byte{255, 255, 255, 255}, addr)

	_, err = parseIPv4("::1")
	assert.NotNil(t, err)
	_, err = parseIPv4("localhost")
	assert.NotNil(t, err)
}

func TestParseIPv6(t *testing.T) {
	addr, err := parseIPv6("::1")
	assert.Nil(t, err)
	assert.Equal(t, byte(1), addr[15])

	// IPv4-mapped literals are valid IPv6 destinations.
	addr, err = parseIPv6("::ffff:127.0.0.1")
	assert.Nil(t, err)
	assert.Equal(t, byte(0xff), addr[10])
	assert.Equal(t, byte(0xff), addr[11])
	assert.Equal(t, byte(127), addr[12])
	assert.Equal(t, byte(1), addr[15])

	// A zone suffix is stripped from the address bytes.
	zoned, err := parseIPv6("fe80::1%lo")
	assert.Nil(t, err)
	assert.Equal(t, byte(0xfe), zoned[0])
	assert.Equal(t, byte(0x80), zoned[1])
	assert.Equal(t, byte(1), zoned[15])

	_, err = parseIPv6("127.0.0.1")
	assert.NotNil(t, err)
	_, err = parseIPv6("localhost")
	assert.NotNil(t, err)
}

func TestSplitZone(t *testing.T) {
	host, zone := splitZone("fe80::1%eth0")
	assert.Equal(t, "fe80::1", host)
	assert.Equal(t, "eth0", zone)

	host, zone = splitZone("::1")
	assert.Equal(t, "::1", host)
	assert.Equal(t, "", zone)
}
