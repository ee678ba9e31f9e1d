// Package client implements the synchronous RPC stub.
//
// A Channel performs one remote call per Call: encode the request frame,
// write it, block until exactly one response frame is read from the same
// connection, decode it. There are no call IDs on the wire, so a connection
// carries one outstanding call at a time; the Channel's mutex makes that hold
// when several goroutines share one Channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"dmonitor/codec"
	"dmonitor/discovery"
	"dmonitor/protocol"
	"dmonitor/transport"
)

var (
	// ErrTransport reports a dial, resolve, read or write failure, including a
	// peer that closed the connection. The next Call redials.
	ErrTransport = errors.New("client: transport error")
	// ErrProtocol reports a malformed response frame or a response payload that
	// does not decode into the caller's type.
	ErrProtocol = errors.New("client: protocol error")
)

// Option configures a Channel.
type Option func(*Channel)

// WithCodec sets the payload codec (ProtoCodec by default). It must match the server's.
func WithCodec(c codec.Codec) Option {
	return func(ch *Channel) { ch.codec = c }
}

// WithDirectory resolves addresses given as a bare service name.
func WithDirectory(d discovery.Directory) Option {
	return func(ch *Channel) { ch.directory = d }
}

// WithDialer replaces the default net.Dialer.
func WithDialer(d transport.Dialer) Option {
	return func(ch *Channel) { ch.dialer = d }
}

// WithMaxFrameSize bounds the declared length of response frames.
func WithMaxFrameSize(n uint32) Option {
	return func(ch *Channel) { ch.maxFrame = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(ch *Channel) { ch.logger = l }
}

// Channel is a synchronous RPC stub holding at most one connection per address.
// It is safe for concurrent use; calls are serialized.
type Channel struct {
	codec     codec.Codec
	directory discovery.Directory
	dialer    transport.Dialer
	maxFrame  uint32
	logger    *zap.Logger

	mu     sync.Mutex // held for the whole write+read of a call
	conns  map[string]*transport.Conn
	closed bool
}

func NewChannel(opts ...Option) *Channel {
	ch := &Channel{conns: make(map[string]*transport.Conn)}
	for _, opt := range opts {
		opt(ch)
	}
	if ch.codec == nil {
		ch.codec = codec.GetCodec(codec.CodecTypeProto)
	}
	if ch.dialer == nil {
		ch.dialer = &net.Dialer{}
	}
	if ch.logger == nil {
		ch.logger = zap.NewNop()
	}
	return ch
}

// Call invokes service.method at address and decodes the result into resp,
// which must be a non-nil pointer. address is host:port, or a service name to
// resolve through the directory.
//
// Call has no timeout of its own: when ctx ends the connection is closed,
// which unblocks the pending read. On error resp is left untouched.
func (c *Channel) Call(ctx context.Context, address, service, method string, req, resp any) error {
	rv := reflect.ValueOf(resp)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("client: resp must be a non-nil pointer, got %T", resp)
	}

	payload, err := c.codec.Encode(req)
	if err != nil {
		return fmt.Errorf("%w: encode %s.%s request: %w", ErrProtocol, service, method, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: channel closed", ErrTransport)
	}
	conn, err := c.connLocked(ctx, address)
	if err != nil {
		return err
	}

	// Ending ctx closes the connection; a blocked read then fails.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	body, err := c.roundTrip(conn, service, method, payload)
	if !stop() {
		c.dropLocked(address, conn, ctx.Err())
		return fmt.Errorf("%w: %s.%s: %w", ErrTransport, service, method, ctx.Err())
	}
	if err != nil {
		c.dropLocked(address, conn, err)
		return err
	}

	// Decode into a fresh value so a failed decode leaves resp untouched.
	fresh := reflect.New(rv.Elem().Type())
	if err := c.codec.Decode(body, fresh.Interface()); err != nil {
		c.dropLocked(address, conn, err)
		return fmt.Errorf("%w: decode %s.%s response: %w", ErrProtocol, service, method, err)
	}
	rv.Elem().Set(fresh.Elem())
	return nil
}

// Call is a typed convenience over Channel.Call.
func Call[Resp any](ctx context.Context, ch *Channel, address, service, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := ch.Call(ctx, address, service, method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Channel) roundTrip(conn *transport.Conn, service, method string, payload []byte) ([]byte, error) {
	h := &protocol.Header{ServiceName: service, MethodName: method}
	if err := protocol.WriteRequest(conn, h, payload); err != nil {
		return nil, classify(service, method, err)
	}
	body, err := protocol.DecodeResponse(conn, c.maxFrame)
	if err != nil {
		return nil, classify(service, method, err)
	}
	return body, nil
}

func classify(service, method string, err error) error {
	if errors.Is(err, protocol.ErrInvalidFrame) {
		return fmt.Errorf("%w: %s.%s: %w", ErrProtocol, service, method, err)
	}
	return fmt.Errorf("%w: %s.%s: %w", ErrTransport, service, method, err)
}

// connLocked returns the open connection for address, dialing one if needed.
func (c *Channel) connLocked(ctx context.Context, address string) (*transport.Conn, error) {
	if conn, ok := c.conns[address]; ok {
		if conn.State() == transport.StateOpen {
			return conn, nil
		}
		delete(c.conns, address)
	}

	target, err := c.resolve(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	conn, err := transport.Dial(ctx, c.dialer, "tcp", target)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, target, err)
	}
	c.logger.Debug("connected", zap.String("address", address), zap.String("target", target))
	c.conns[address] = conn
	return conn, nil
}

// resolve maps a bare service name to an address; host:port passes through.
func (c *Channel) resolve(ctx context.Context, address string) (string, error) {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address, nil
	}
	if c.directory == nil {
		return "", fmt.Errorf("client: %q is not host:port and no directory is configured", address)
	}
	return c.directory.Resolve(ctx, address)
}

func (c *Channel) dropLocked(address string, conn *transport.Conn, cause error) {
	conn.Close()
	if c.conns[address] == conn {
		delete(c.conns, address)
	}
	c.logger.Debug("connection dropped", zap.String("address", address), zap.Error(cause))
}

// Close closes every connection. Calls after Close fail with ErrTransport.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	var errs []error
	for address, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.conns, address)
	}
	return errors.Join(errs...)
}
