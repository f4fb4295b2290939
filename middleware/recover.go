package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/fieldline/rebatch/item"
)

// Recover returns middleware that recovers from panics in the
// extraction chain. Panics are converted to errors and logged with a
// stack trace, so a panicking extractor fails the item instead of
// aborting the batch.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, it item.Item, next Handler) (result []byte, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("extractor panicked",
					slog.String("item_id", it.ID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				result = nil
				retErr = fmt.Errorf("panic extracting item %s: %v", it.ID, r)
			}
		}()
		return next(ctx)
	}
}
