package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs message handling at debug level
// and failures at error level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("page message failed",
				slog.String("method", c.Method),
				slog.Int("tab_id", c.TabID),
				slog.String("conn_id", c.ConnID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("page message handled",
				slog.String("method", c.Method),
				slog.Int("tab_id", c.TabID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
