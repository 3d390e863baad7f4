package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for walkthrough metrics.
const meterName = "github.com/xraph/walkthrough"

// Metrics returns middleware that records per-method message metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - walkthrough.message.duration (Float64Histogram): handling time in
//     seconds, with attributes: method, status ("ok" or "error")
//   - walkthrough.message.count (Int64Counter): handled messages,
//     with attributes: method, status ("ok" or "error")
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"walkthrough.message.duration",
		metric.WithDescription("Duration of page message handling in seconds"),
		metric.WithUnit("s"),
	)
	count, _ := meter.Int64Counter(
		"walkthrough.message.count",
		metric.WithDescription("Total number of handled page messages"),
		metric.WithUnit("{message}"),
	)

	return func(ctx context.Context, c *Call, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("method", c.Method),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		count.Add(ctx, 1, attrs)

		return err
	}
}
