package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/udduke/ribbon/wire"
)

// Retry re-attempts calls that fail with a transient transport error, with
// exponential backoff starting at baseDelay. Application-level failures are
// returned immediately; retrying them would duplicate side effects.
func Retry(maxRetries int, baseDelay time.Duration, log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *wire.Message) *wire.Message {
			resp := next(ctx, req)
			for attempt := 0; attempt < maxRetries; attempt++ {
				if resp.Error == "" || !retryable(resp.Error) {
					return resp
				}
				log.Info("retrying call",
					zap.String("method", req.ServiceMethod),
					zap.Int("attempt", attempt+1),
					zap.String("error", resp.Error))
				select {
				case <-time.After(baseDelay * time.Duration(1<<attempt)):
				case <-ctx.Done():
					return resp
				}
				resp = next(ctx, req)
			}
			return resp
		}
	}
}

func retryable(errText string) bool {
	return strings.Contains(errText, "timeout") ||
		strings.Contains(errText, "timed out") ||
		strings.Contains(errText, "connection refused") ||
		strings.Contains(errText, "broken pipe")
}
