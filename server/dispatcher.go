package server

import (
	"context"
	"fmt"
	"sync"

	"dmonitor/codec"
	"dmonitor/protocol"
)

// Dispatcher turns a decoded request frame into a method invocation and the
// method's result into a response payload.
type Dispatcher struct {
	services *ServiceTable
	codec    codec.Codec
}

func NewDispatcher(services *ServiceTable, c codec.Codec) *Dispatcher {
	if c == nil {
		c = codec.GetCodec(codec.CodecTypeProto)
	}
	return &Dispatcher{services: services, codec: c}
}

type completion struct {
	out any
	err error
}

// Dispatch runs the method named by req.Header and returns the encoded result.
//
// The handler receives a completion callback and may call it from another
// goroutine; Dispatch does not return a payload before the callback fires.
// If ctx ends first, Dispatch returns ctx.Err() and a late completion is dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) ([]byte, error) {
	m, err := d.services.lookup(req.Header.ServiceName, req.Header.MethodName)
	if err != nil {
		return nil, err
	}

	in, err := m.decode(d.codec, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrBadArguments, m.desc, err)
	}

	result := make(chan completion, 1)
	var once sync.Once
	done := func(out any, err error) {
		once.Do(func() { result <- completion{out: out, err: err} })
	}

	if err := invoke(ctx, m, in, done); err != nil {
		done(nil, err)
	}

	var c completion
	select {
	case c = <-result:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrHandler, m.desc, c.err)
	}

	payload, err := m.encode(d.codec, c.out)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrBadResult, m.desc, err)
	}
	return payload, nil
}

// invoke calls the handler, turning a panic on the calling goroutine into an error.
func invoke(ctx context.Context, m *methodType, in any, done func(any, error)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", m.desc, r)
		}
	}()
	m.invoke(ctx, in, done)
	return nil
}
