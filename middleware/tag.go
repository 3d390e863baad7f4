package middleware

import "context"

type callKey struct{}

// Tag returns middleware that stores the Call in the handler context.
func Tag() Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		return next(context.WithValue(ctx, callKey{}, c))
	}
}

// CallFrom returns the Call stored by Tag.
func CallFrom(ctx context.Context) (*Call, bool) {
	c, ok := ctx.Value(callKey{}).(*Call)
	return c, ok
}
