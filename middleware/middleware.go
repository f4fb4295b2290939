// Package middleware provides composable middleware for extraction
// calls. Middleware wraps the extractor synchronously and can modify
// execution (recover from panics, enforce a deadline, log, add
// metrics and tracing).
package middleware

import (
	"context"

	"github.com/fieldline/rebatch/item"
)

// Handler is the terminal function that performs the extraction and
// returns the extracted payload.
type Handler func(ctx context.Context) ([]byte, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the item being extracted, and the next handler to
// call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, it item.Item, next Handler) ([]byte, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → extractor
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, it item.Item, next Handler) ([]byte, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) ([]byte, error) {
				return mw(ctx, it, prev)
			}
		}
		return h(ctx)
	}
}
