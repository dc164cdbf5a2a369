package middleware

import (
	"context"
	"time"

	"github.com/udduke/ribbon/wire"
)

// Timeout bounds a call's total duration. On expiry the caller gets a
// response with a timeout error; the inner handler keeps running in its
// goroutine until it finishes, since the transport cannot abandon an
// in-flight frame mid-write.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *wire.Message) *wire.Message {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *wire.Message, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return &wire.Message{
					ServiceMethod: req.ServiceMethod,
					Error:         "request timed out",
				}
			}
		}
	}
}
