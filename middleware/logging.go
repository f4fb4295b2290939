package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldline/rebatch/item"
)

// Logging returns middleware that logs extraction start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, it item.Item, next Handler) ([]byte, error) {
		logger.Debug("extraction started", slog.String("item_id", it.ID))

		start := time.Now()
		result, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("extraction failed",
				slog.String("item_id", it.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("extraction completed",
				slog.String("item_id", it.ID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return result, err
	}
}
