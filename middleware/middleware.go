// Package middleware wraps the server's dispatch step.
//
// Middlewares see the decoded request frame and the encoded result. An error
// returned by any layer is a dispatch failure: the server logs it and closes
// the connection without a response.
package middleware

import (
	"context"

	"dmonitor/protocol"
)

type HandlerFunc func(ctx context.Context, req *protocol.Request) ([]byte, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, outermost first:
// Chain(A, B, C)(h) runs A.before → B.before → C.before → h → C.after → B.after → A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
