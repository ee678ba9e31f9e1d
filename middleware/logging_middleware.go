package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dmonitor/protocol"
)

// LoggingMiddleware logs every dispatch with its target, argument size,
// duration and error.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("service", req.Header.ServiceName),
				zap.String("method", req.Header.MethodName),
				zap.Uint32("args_size", req.Header.ArgsSize),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("dispatch failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("dispatched", append(fields, zap.Int("result_size", len(resp)))...)
			}
			return resp, err
		}
	}
}
