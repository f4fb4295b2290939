package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/fieldline/rebatch"
	"github.com/fieldline/rebatch/item"
)

// Timeout returns middleware that enforces a per-call extraction
// deadline. The engine itself enforces no timeout; this middleware is
// the collaborator-side place for one. Deadline errors come back as
// transient failures, so timed-out items consume a retry attempt
// rather than failing permanently.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ item.Item, next Handler) ([]byte, error) {
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		result, err := next(ctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, rebatch.Transient(err)
		}
		return result, err
	}
}
