package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/udduke/ribbon/wire"
)

// RateLimit rejects calls beyond r per second with a burst allowance, using
// a token bucket. Rejected calls fail fast rather than queue.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next Handler) Handler {
		return func(ctx context.Context, req *wire.Message) *wire.Message {
			if !limiter.Allow() {
				return &wire.Message{
					ServiceMethod: req.ServiceMethod,
					Error:         "rate limit exceeded",
				}
			}
			return next(ctx, req)
		}
	}
}
