package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dmonitor/protocol"
)

var ErrTimeout = errors.New("middleware: request timed out")

// TimeoutMiddleware bounds how long a dispatch may wait for its handler to
// complete. The handler's context is cancelled when the bound expires.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			resp, err := next(ctx, req)
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %s: %w", ErrTimeout, timeout, err)
			}
			return resp, err
		}
	}
}
