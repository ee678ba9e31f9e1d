// Package transport wraps byte-stream connections for the RPC layer.
//
// A Conn tracks its lifecycle (Connecting → Open → Closed) and serializes
// writes, so a frame handed to Write in one call is never interleaved with
// another writer's frame. It carries no framing or correlation state itself:
// the protocol package frames bytes, and callers enforce one outstanding
// request per connection.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Conn.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Conn is a net.Conn with lifecycle tracking and serialized writes.
type Conn struct {
	net.Conn
	state     atomic.Int32
	writeMu   sync.Mutex // whole-frame writes must not interleave
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established connection, e.g. one returned by Accept.
func NewConn(c net.Conn) *Conn {
	conn := &Conn{Conn: c}
	conn.state.Store(int32(StateOpen))
	return conn
}

// Dial connects to address through d (a zero net.Dialer when nil). The
// returned Conn is Open.
func Dial(ctx context.Context, d Dialer, network, address string) (*Conn, error) {
	if d == nil {
		d = &net.Dialer{}
	}
	conn := &Conn{}
	conn.state.Store(int32(StateConnecting))

	c, err := d.DialContext(ctx, network, address)
	if err != nil {
		conn.state.Store(int32(StateClosed))
		return nil, err
	}
	conn.Conn = c
	conn.state.Store(int32(StateOpen))
	return conn, nil
}

// State reports the current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Write writes p as one unit with respect to other Write calls on c.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.Write(p)
}

// Close closes the underlying connection once; later calls return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}
