package hub

import (
	"time"
)

// ErrorAction defines the action to take when a transport error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// Framer reads and writes frames on a hub connection.
type Framer interface {
	FrameReader
	FrameWriter
}

// options holds the configuration for a hub connection.
type options struct {
	codec  *Codec
	framer Framer
	binder Binder
	logger Logger

	// onMessage is called for every decoded message, including pings and
	// invocations whose arguments failed to bind.
	onMessage func(conn *Conn, message Message) error
	// onError is called for read/write errors. Format errors are always fatal
	// and never reach it.
	onError func(error) ErrorAction

	bufferSize    int           // size of buffered send channel
	maxReadLength int           // maximum number of buffered, unparsed bytes
	idleTimeout   time.Duration // read/write deadline is twice this value
	keepAlive     time.Duration // interval between pings on an idle connection
}

// Option is a function that configures connection options.
type Option func(*options)

// CustomCodecOption sets the message codec. Defaults to NewCodec().
func CustomCodecOption(codec *Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// FramerOption sets the framing. Defaults to a VarintFramer limited to
// the maximum message size.
func FramerOption(framer Framer) Option {
	return func(o *options) {
		o.framer = framer
	}
}

// BinderOption sets the binder used to decode arguments and results.
// It is required.
func BinderOption(binder Binder) Option {
	return func(o *options) {
		o.binder = binder
	}
}

// BufferSizeOption sets the size of the send channel buffer.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// IdleTimeoutOption sets how long the peer may stay silent. The read and
// write deadlines are twice this value.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// KeepAliveOption sets the interval at which a ping is sent when nothing
// else has been written.
func KeepAliveOption(interval time.Duration) Option {
	return func(o *options) {
		o.keepAlive = interval
	}
}

// MessageMaxSize sets the maximum number of received bytes that may be
// buffered while waiting for a frame to complete.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// OnErrorOption sets the transport error callback.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption sets the message handler. It is required.
func OnMessageOption(cb func(*Conn, Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption sets the logger. Defaults to slog.Default().
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
