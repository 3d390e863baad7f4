package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for walkthrough tracing.
const tracerName = "github.com/xraph/walkthrough"

// Tracing returns middleware that wraps message handling in an
// OpenTelemetry span. Without a global TracerProvider the noop tracer is
// used.
//
// Span attributes: walkthrough.method, walkthrough.tab_id,
// walkthrough.conn_id.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		ctx, span := tracer.Start(ctx, "walkthrough.message "+c.Method,
			trace.WithAttributes(
				attribute.String("walkthrough.method", c.Method),
				attribute.Int("walkthrough.tab_id", c.TabID),
				attribute.String("walkthrough.conn_id", c.ConnID),
			),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
