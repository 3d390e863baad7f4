package middleware

import (
	"context"
	"time"
)

// Timeout returns middleware that enforces the call's deadline. Calls
// with a zero Timeout get fallback instead; a zero fallback disables the
// deadline.
func Timeout(fallback time.Duration) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		d := c.Timeout
		if d <= 0 {
			d = fallback
		}
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
