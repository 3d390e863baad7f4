// Package middleware provides composable middleware for page-message
// handling.
//
// A [Middleware] is a function that wraps the handler for one inbound
// page message ([Call]). Middleware are composed into a chain using
// [Chain] and applied before each message is dispatched. They are applied
// right-to-left: the first middleware in the slice is the outermost
// wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs method, tab, duration and outcome for each message
//   - [Recover] catches panics and converts them to errors
//   - [Timeout] cancels the handler context after the call's deadline
//   - [Tracing] wraps handling in an OpenTelemetry span
//   - [Metrics] records per-method duration and outcome counters
//   - [Tag] makes the [Call] available to handlers via [CallFrom]
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, c *middleware.Call, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
