// Package hub implements the message protocol of a bidirectional RPC hub.
//
// Messages are encoded with MessagePack and carried in length-prefixed
// frames. Codec maps messages to payloads, Parser splits a byte buffer into
// messages, and Conn and Server run the protocol over TCP.
package hub

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidBinder is returned when no binder is provided.
	ErrInvalidBinder = errors.New("invalid binder")
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrMessageTooLarge is returned when buffered bytes exceed the maximum message size.
	ErrMessageTooLarge = errors.New("message too large")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// ErrBufferFull is returned when the send buffer cannot accept more messages.
var ErrBufferFull = errors.New("send buffer full")

// Default configuration values.
const (
	defaultBufferSize       = 16
	defaultMaxPackageLength = 1024 * 1024
	defaultIdleTimeout      = 30 * time.Second
	defaultKeepAlive        = 15 * time.Second

	readChunkSize = 4096
)

// Conn is a hub connection. It decodes incoming frames into messages for
// the OnMessage handler and frames outgoing messages.
type Conn struct {
	rawConn net.Conn
	parser  *Parser
	logger  Logger

	opts options

	pingFrame []byte
	sendMsg   chan []byte
	closed    atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConn wraps conn into a hub connection.
// Returns an error if required options (binder, onMessage) are missing.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts)
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxPackageLength
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.binder == nil {
		return ErrInvalidBinder
	}

	if opts.idleTimeout <= 0 {
		opts.idleTimeout = defaultIdleTimeout
	}

	if opts.keepAlive <= 0 {
		opts.keepAlive = defaultKeepAlive
	}

	if opts.codec == nil {
		codec, err := NewCodec()
		if err != nil {
			return err
		}
		opts.codec = codec
	}

	if opts.framer == nil {
		opts.framer = VarintFramer{MaxFrameSize: opts.maxReadLength}
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

func newConnWithOptions(conn net.Conn, opts options) (*Conn, error) {
	c := &Conn{
		rawConn: conn,
		parser:  NewParser(opts.codec, opts.framer),
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan []byte, opts.bufferSize),
	}

	ping, err := c.encode(Ping)
	if err != nil {
		return nil, err
	}
	c.pingFrame = ping

	return c, nil
}

// Run starts the connection's read and write loops and blocks until one of
// them fails or ctx is canceled. The connection is closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("hub connection established", "addr", c.Addr())
	c.logger.Debug("hub connection options", "addr", c.Addr(),
		"buffer_size", c.opts.bufferSize,
		"max_read_length", c.opts.maxReadLength,
		"idle_timeout", c.opts.idleTimeout,
		"keep_alive", c.opts.keepAlive)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	group, child := errgroup.WithContext(ctx)

	// Unblock a pending read once either loop stops.
	stop := context.AfterFunc(child, func() {
		_ = c.rawConn.SetReadDeadline(time.Now())
	})
	defer stop()

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()
	c.closeConn()

	switch {
	case err != nil && IsFatal(err):
		c.logger.Error("hub connection closed on malformed message", "addr", c.Addr(), "error", err)
	case err != nil && !errors.Is(err, context.Canceled):
		c.logger.Info("hub connection closed with error", "addr", c.Addr(), "error", err)
	default:
		c.logger.Info("hub connection closed", "addr", c.Addr())
	}

	return err
}

// Close closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues msg without blocking. It returns ErrBufferFull when the send
// buffer is full; the message is dropped in that case.
func (c *Conn) Write(msg Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	frame, err := c.encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues msg, waiting for buffer space until ctx is done.
func (c *Conn) WriteBlocking(ctx context.Context, msg Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	frame, err := c.encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues msg, waiting at most timeout for buffer space.
// It returns ErrBufferFull when the timeout expires.
func (c *Conn) WriteTimeout(msg Message, timeout time.Duration) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	frame, err := c.encode(msg)
	if err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.sendMsg <- frame:
		return nil
	case <-timer.C:
		return ErrBufferFull
	}
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

func (c *Conn) encode(msg Message) ([]byte, error) {
	payload, err := c.opts.codec.Encode(msg)
	if err != nil {
		return nil, err
	}
	return c.opts.framer.WriteFrame(payload), nil
}

// readLoop accumulates received bytes and dispatches every complete frame.
// A malformed frame ends the loop regardless of onError.
func (c *Conn) readLoop(ctx context.Context) error {
	var pending []byte
	chunk := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_ = c.rawConn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout * 2))

		n, err := c.rawConn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)

			var derr error
			if pending, derr = c.dispatch(pending); derr != nil {
				return derr
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("read error", "addr", c.Addr(), "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
		}
	}
}

// dispatch hands every complete message in pending to the handler and
// returns the unconsumed remainder.
func (c *Conn) dispatch(pending []byte) ([]byte, error) {
	messages, consumed, err := c.parser.ParseAll(pending, c.opts.binder)
	if err != nil {
		return nil, err
	}

	for _, msg := range messages {
		if completion := BindingFailureCompletion(msg); completion != nil {
			c.logger.Warn("invocation arguments failed to bind", "addr", c.Addr(),
				"invocation_id", completion.InvocationID, "error", completion.Error)
		}
		if err := c.opts.onMessage(c, msg); err != nil {
			return nil, err
		}
	}

	pending = append(pending[:0], pending[consumed:]...)
	if len(pending) > c.opts.maxReadLength {
		return nil, ErrMessageTooLarge
	}
	return pending, nil
}

// writeLoop sends queued frames, and a ping whenever a keep-alive interval
// passes without any other write.
func (c *Conn) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.keepAlive)
	defer ticker.Stop()

	wrote := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
			wrote = true
		case <-ticker.C:
			if wrote {
				wrote = false
				continue
			}
			if err := c.write(c.pingFrame); err != nil {
				return err
			}
		}
	}
}

// write sends data with a deadline. The error is returned only when
// onError asks to disconnect.
func (c *Conn) write(data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.idleTimeout * 2))

	_, err := c.rawConn.Write(data)

	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the connection as closed and closes the underlying connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}
