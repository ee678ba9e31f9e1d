// Package server implements the RPC server: an explicit service table, a
// dispatcher, and an accept loop with one goroutine per connection.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine, one request at a time)
//	  → protocol.DecodeRequest → middleware chain → Dispatcher.Dispatch
//	    → decode args → handler(done) … done(result) → encode result
//	  → protocol.WriteResponse → next request
//
// A connection carries at most one outstanding request, so the goroutine
// waits for the handler's completion before reading the next frame. Responses
// on a connection are therefore written in request order even when handlers
// complete on other goroutines.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"dmonitor/codec"
	"dmonitor/discovery"
	"dmonitor/middleware"
	"dmonitor/protocol"
	"dmonitor/transport"
)

const publishTimeout = 5 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithCodec sets the payload codec (ProtoCodec by default).
func WithCodec(c codec.Codec) Option {
	return func(s *Server) { s.codec = c }
}

// WithMaxFrameSize bounds the declared length of incoming frames.
func WithMaxFrameSize(n uint32) Option {
	return func(s *Server) { s.maxFrame = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDirectory publishes every registered service under advertiseAddr when
// serving starts and withdraws it on Shutdown. An empty advertiseAddr uses the
// listener's address.
func WithDirectory(d discovery.Directory, advertiseAddr string) Option {
	return func(s *Server) {
		s.directory = d
		s.advertiseAddr = advertiseAddr
	}
}

// Server is the RPC server that registers services and handles incoming requests.
type Server struct {
	services    *ServiceTable
	codec       codec.Codec
	maxFrame    uint32
	logger      *zap.Logger
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(middleware(...(Dispatch)))

	directory     discovery.Directory
	advertiseAddr string // routable address published to the directory
	published     []string

	ctx    context.Context // handler context, cancelled when Shutdown gives up
	cancel context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	conns      map[*serverConn]struct{}
	wg         sync.WaitGroup // connection goroutines
	shutdown   atomic.Bool
}

type serverConn struct {
	*transport.Conn
	busy atomic.Bool // a request is being dispatched or answered
}

// NewServer creates a server with an empty service table.
func NewServer(opts ...Option) *Server {
	s := &Server{
		services: NewServiceTable(),
		conns:    make(map[*serverConn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		s.codec = codec.GetCodec(codec.CodecTypeProto)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Register adds a service. It fails once the server is serving.
func (s *Server) Register(svc *Service) error {
	if err := s.services.Register(svc); err != nil {
		return err
	}
	s.logger.Debug("service registered",
		zap.String("service", svc.Name()),
		zap.Stringers("methods", svc.Methods()))
	return nil
}

// Services exposes the service table, e.g. for Lookup.
func (s *Server) Services() *ServiceTable {
	return s.services
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// ListenAndServe listens on address and calls Serve.
func (s *Server) ListenAndServe(network, address string) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Addr returns the listener address once Serve has started, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve freezes the service table, publishes the services, and accepts
// connections on ln until Shutdown. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	// Registration ends here; lookups from connection goroutines take no lock.
	s.services.Freeze()

	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return errors.New("server: already serving")
	}
	if s.shutdown.Load() {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.acceptDone = make(chan struct{})
	s.mu.Unlock()
	defer close(s.acceptDone)

	dispatcher := NewDispatcher(s.services, s.codec)
	s.handler = middleware.Chain(s.middlewares...)(dispatcher.Dispatch)

	published, addr, err := s.publish(ln.Addr().String())
	s.mu.Lock()
	s.published, s.advertiseAddr = published, addr
	s.mu.Unlock()
	if err != nil {
		ln.Close()
		return err
	}
	s.logger.Info("serving",
		zap.Stringer("addr", ln.Addr()),
		zap.Strings("services", s.services.Services()),
		zap.Stringer("codec", s.codec.Type()))

	for {
		nc, err := ln.Accept()
		if err != nil {
			// During shutdown, listener.Close() causes Accept to return an error.
			if s.shutdown.Load() {
				return nil
			}
			return err
		}

		conn := &serverConn{Conn: transport.NewConn(nc)}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go s.handleConn(conn)
	}
}

// publish announces every service under the advertise address and returns
// the names that were published, for Shutdown to withdraw.
func (s *Server) publish(listenAddr string) ([]string, string, error) {
	s.mu.Lock()
	addr := s.advertiseAddr
	s.mu.Unlock()
	if addr == "" {
		addr = listenAddr
	}
	if s.directory == nil {
		return nil, addr, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var published []string
	for _, name := range s.services.Services() {
		if err := s.directory.Publish(ctx, name, addr); err != nil {
			return published, addr, fmt.Errorf("server: publish %s: %w", name, err)
		}
		published = append(published, name)
	}
	return published, addr, nil
}

func (s *Server) track(c *serverConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *serverConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// begin marks conn busy unless Shutdown has started. It holds s.mu so that
// Shutdown either sees the mark and leaves conn open, or the request is
// dropped before its handler runs.
func (s *Server) begin(c *serverConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown.Load() {
		return false
	}
	c.busy.Store(true)
	return true
}

// handleConn serves one connection until the peer closes it, a frame or
// dispatch fails, or the server shuts down.
func (s *Server) handleConn(conn *serverConn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	logger := s.logger.With(zap.Stringer("remote", conn.RemoteAddr()))
	logger.Debug("connection opened")

	for {
		req, err := protocol.DecodeRequest(conn, s.maxFrame)
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) || s.shutdown.Load() {
				logger.Debug("connection closed", zap.Error(err))
			} else {
				logger.Warn("bad request frame, closing connection", zap.Error(err))
			}
			return
		}

		if !s.begin(conn) {
			logger.Debug("shutting down, request dropped",
				zap.String("service", req.Header.ServiceName),
				zap.String("method", req.Header.MethodName))
			return
		}
		resp, err := s.handler(s.ctx, req)
		if err != nil {
			// No error frame exists on the wire: the peer observes a closed connection.
			logger.Warn("dispatch failed, closing connection",
				zap.String("service", req.Header.ServiceName),
				zap.String("method", req.Header.MethodName),
				zap.Error(err))
			return
		}
		err = protocol.WriteResponse(conn, resp)
		conn.busy.Store(false)
		if err != nil {
			logger.Debug("write response failed", zap.Error(err))
			return
		}
		if s.shutdown.Load() {
			return
		}
	}
}

// Shutdown performs graceful shutdown:
//  1. Withdraw the services from the directory (clients stop resolving to this server)
//  2. Set the shutdown flag and close the listener
//  3. Close idle connections; busy ones close after writing their response
//  4. Wait for connection goroutines, cancelling handlers if timeout passes
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	published, addr := s.published, s.advertiseAddr
	s.published = nil
	s.mu.Unlock()
	if len(published) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		for _, name := range published {
			if err := s.directory.Unpublish(ctx, name, addr); err != nil {
				s.logger.Warn("unpublish failed", zap.String("service", name), zap.Error(err))
			}
		}
		cancel()
	}

	// Set the flag before closing the listener so Serve sees an intentional close.
	s.mu.Lock()
	s.shutdown.Store(true)
	ln, acceptDone := s.listener, s.acceptDone
	for c := range s.conns {
		if !c.busy.Load() {
			c.Close()
		}
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
		<-acceptDone
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		<-done
		return fmt.Errorf("server: timeout waiting for ongoing requests to finish")
	}
}
