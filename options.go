package dgram

import (
	"go.uber.org/zap"
)

const (
	// DefaultMaxPacketSize is the largest datagram accepted in a single
	// receive.
	DefaultMaxPacketSize = 8192

	// DefaultMaxThroughput is the number of bytes drained per readiness
	// notification before yielding back to the reactor. It bounds the
	// latency a saturated port can inflict on the loop's other sources.
	DefaultMaxThroughput = 256 * 1024
)

type Options struct {
	// Interface is the local IPv4 or IPv6 address to bind. Defaults to
	// "", ie all IPv4 addresses. The port's address family is derived
	// from this once, at construction.
	Interface string

	// MaxPacketSize is the maximum packet size to accept. If not set
	// defaults to 8192 bytes.
	MaxPacketSize int

	// MaxThroughput is the maximum number of bytes read in one reactor
	// iteration. If not set defaults to 256KB.
	MaxThroughput int

	// ListenMultiple enables address (and, where available, port) reuse
	// on a multicast port so multiple listeners can bind the same group
	// concurrently. Only read by NewMulticastPort.
	ListenMultiple bool

	Logger *zap.Logger
}

type Option func(*Options)

func WithInterface(iface string) Option {
	return func(opts *Options) {
		opts.Interface = iface
	}
}

func WithMaxPacketSize(size int) Option {
	return func(opts *Options) {
		opts.MaxPacketSize = size
	}
}

func WithMaxThroughput(n int) Option {
	return func(opts *Options) {
		opts.MaxThroughput = n
	}
}

func WithListenMultiple(enabled bool) Option {
	return func(opts *Options) {
		opts.ListenMultiple = enabled
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func defaultOptions() *Options {
	l, _ := zap.NewDevelopment()
	return &Options{
		Interface:      "",
		MaxPacketSize:  DefaultMaxPacketSize,
		MaxThroughput:  DefaultMaxThroughput,
		ListenMultiple: false,
		Logger:         l,
	}
}
