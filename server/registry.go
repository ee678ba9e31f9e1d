package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"dmonitor/codec"
)

var (
	ErrUnknownService = errors.New("server: unknown service")
	ErrUnknownMethod  = errors.New("server: unknown method")
	ErrBadArguments   = errors.New("server: cannot decode arguments")
	ErrBadResult      = errors.New("server: cannot encode result")
	ErrHandler        = errors.New("server: handler failed")
	ErrServiceExists  = errors.New("server: service already registered")
	ErrRegistryFrozen = errors.New("server: registration closed, server is serving")
)

// Done completes a call. It may be invoked from any goroutine; only the first
// invocation counts. A nil resp with a nil error sends the zero Resp.
type Done[Resp any] func(resp *Resp, err error)

// Handler serves one method. It either calls done before returning, or hands
// done to another goroutine that calls it later. It must not block
// indefinitely on the calling goroutine.
type Handler[Req, Resp any] func(ctx context.Context, req *Req, done Done[Resp])

// Sync adapts an ordinary request/response function into a Handler that
// completes on the calling goroutine.
func Sync[Req, Resp any](fn func(ctx context.Context, req *Req) (*Resp, error)) Handler[Req, Resp] {
	return func(ctx context.Context, req *Req, done Done[Resp]) {
		done(fn(ctx, req))
	}
}

// MethodDescriptor identifies a callable method and its input/output types.
// Immutable once the method is added to a Service.
type MethodDescriptor struct {
	ServiceName string
	MethodName  string
	InputType   string
	OutputType  string
}

func (d MethodDescriptor) String() string {
	return d.ServiceName + "." + d.MethodName
}

// methodType is the registration-time triple the dispatcher runs:
// decode the input, invoke the handler, encode the output.
type methodType struct {
	desc   MethodDescriptor
	decode func(c codec.Codec, data []byte) (any, error)
	invoke func(ctx context.Context, in any, done func(out any, err error))
	encode func(c codec.Codec, out any) ([]byte, error)
}

// Service is a named set of methods, built once at startup.
type Service struct {
	name   string
	method map[string]*methodType
}

// NewService creates an empty service.
func NewService(name string) *Service {
	return &Service{
		name:   name,
		method: make(map[string]*methodType),
	}
}

func (s *Service) Name() string {
	return s.name
}

// Methods returns the descriptors of all methods, sorted by name.
func (s *Service) Methods() []MethodDescriptor {
	out := make([]MethodDescriptor, 0, len(s.method))
	for _, m := range s.method {
		out = append(out, m.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MethodName < out[j].MethodName })
	return out
}

// AddMethod adds method name to svc. Like http.ServeMux registration it is
// startup code: an empty or duplicate name panics.
func AddMethod[Req, Resp any](svc *Service, name string, h Handler[Req, Resp]) {
	if name == "" {
		panic("server: AddMethod with empty method name")
	}
	if _, dup := svc.method[name]; dup {
		panic(fmt.Sprintf("server: method %s.%s added twice", svc.name, name))
	}

	svc.method[name] = &methodType{
		desc: MethodDescriptor{
			ServiceName: svc.name,
			MethodName:  name,
			InputType:   fmt.Sprintf("%T", new(Req)),
			OutputType:  fmt.Sprintf("%T", new(Resp)),
		},
		decode: func(c codec.Codec, data []byte) (any, error) {
			req := new(Req)
			if err := c.Decode(data, req); err != nil {
				return nil, err
			}
			return req, nil
		},
		invoke: func(ctx context.Context, in any, done func(any, error)) {
			h(ctx, in.(*Req), func(resp *Resp, err error) {
				if err != nil {
					done(nil, err)
					return
				}
				if resp == nil {
					resp = new(Resp)
				}
				done(resp, nil)
			})
		},
		encode: func(c codec.Codec, out any) ([]byte, error) {
			return c.Encode(out)
		},
	}
}

// ServiceTable maps service names to services. It is filled before the server
// starts accepting connections and frozen afterwards; lookups take no lock.
type ServiceTable struct {
	mu       sync.Mutex // serializes Register calls
	services map[string]*Service
	frozen   atomic.Bool
}

func NewServiceTable() *ServiceTable {
	return &ServiceTable{services: make(map[string]*Service)}
}

// Register adds svc. Registering a name twice is rejected with ErrServiceExists.
func (t *ServiceTable) Register(svc *Service) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen.Load() {
		return fmt.Errorf("register %s: %w", svc.name, ErrRegistryFrozen)
	}
	if svc.name == "" {
		return fmt.Errorf("server: register: empty service name")
	}
	if _, ok := t.services[svc.name]; ok {
		return fmt.Errorf("register %s: %w", svc.name, ErrServiceExists)
	}
	t.services[svc.name] = svc
	return nil
}

// Freeze ends registration. Subsequent Register calls fail.
func (t *ServiceTable) Freeze() {
	t.mu.Lock()
	t.frozen.Store(true)
	t.mu.Unlock()
}

// Lookup returns the descriptor of serviceName.methodName.
func (t *ServiceTable) Lookup(serviceName, methodName string) (MethodDescriptor, error) {
	m, err := t.lookup(serviceName, methodName)
	if err != nil {
		return MethodDescriptor{}, err
	}
	return m.desc, nil
}

func (t *ServiceTable) lookup(serviceName, methodName string) (*methodType, error) {
	svc, ok := t.services[serviceName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, serviceName)
	}
	m, ok := svc.method[methodName]
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnknownMethod, methodName, serviceName)
	}
	return m, nil
}

// Services returns the registered service names, sorted.
func (t *ServiceTable) Services() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.services))
	for name := range t.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
