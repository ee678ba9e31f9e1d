package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"dmonitor/protocol"
)

var ErrRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimitMiddleware admits r dispatches per second with bursts of up to burst,
// shared by all connections (token bucket).
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) ([]byte, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
