// Package middleware wraps call handlers in cross-cutting behavior: logging,
// retry with backoff, timeouts, and client-side rate limiting.
//
// A Middleware wraps a Handler in onion order: Chain(A, B, C) runs
// A.before → B.before → C.before → handler → C.after → B.after → A.after.
// The same chain type serves both sides of the wire; the client wraps its
// send path, the server wraps its dispatch path.
package middleware

import (
	"context"

	"github.com/udduke/ribbon/wire"
)

// Handler processes one message and produces the response message.
// Failures travel in the response's Error field, not as Go errors, so every
// layer sees exactly what the remote peer would.
type Handler func(ctx context.Context, req *wire.Message) *wire.Message

// Middleware wraps a Handler with additional behavior.
type Middleware func(next Handler) Handler

// Chain composes middlewares into one. The first argument becomes the
// outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
