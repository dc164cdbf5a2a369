package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/wire"
)

// Logging records every call with its duration, and failures at warn level.
func Logging(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *wire.Message) *wire.Message {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.String("method", req.ServiceMethod),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.Error != "" {
				log.Warn("call failed", append(fields, zap.String("error", resp.Error))...)
			} else {
				log.Debug("call completed", fields...)
			}
			return resp
		}
	}
}
