package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/walkthrough/ext"
	"github.com/xraph/walkthrough/session"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.SessionStarted = (*MetricsExtension)(nil)
	_ ext.StepChanged    = (*MetricsExtension)(nil)
	_ ext.SessionEnded   = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/walkthrough/observability"

// MetricsExtension records session lifecycle counters.
//
// Instruments:
//   - walkthrough.session.started (Int64Counter), with attribute workflow_id
//   - walkthrough.step.changed (Int64Counter), with attribute direction
//     ("forward" or "back")
//   - walkthrough.session.ended (Int64Counter), with attribute reason
//   - walkthrough.session.steps_completed (Int64Histogram): the step index a
//     session reached when it ended
type MetricsExtension struct {
	started   metric.Int64Counter
	changed   metric.Int64Counter
	ended     metric.Int64Counter
	completed metric.Int64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the API returns noop instruments.
	started, _ := meter.Int64Counter("walkthrough.session.started",
		metric.WithDescription("Sessions started"),
		metric.WithUnit("{session}"),
	)
	changed, _ := meter.Int64Counter("walkthrough.step.changed",
		metric.WithDescription("Step cursor moves"),
		metric.WithUnit("{step}"),
	)
	ended, _ := meter.Int64Counter("walkthrough.session.ended",
		metric.WithDescription("Sessions ended, by reason"),
		metric.WithUnit("{session}"),
	)
	completed, _ := meter.Int64Histogram("walkthrough.session.steps_completed",
		metric.WithDescription("Step index reached when a session ended"),
		metric.WithUnit("{step}"),
	)
	return &MetricsExtension{
		started:   started,
		changed:   changed,
		ended:     ended,
		completed: completed,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnSessionStarted implements ext.SessionStarted.
func (m *MetricsExtension) OnSessionStarted(ctx context.Context, s *session.Session) error {
	m.started.Add(ctx, 1, metric.WithAttributes(attribute.Int64("workflow_id", s.WorkflowID)))
	return nil
}

// OnStepChanged implements ext.StepChanged.
func (m *MetricsExtension) OnStepChanged(ctx context.Context, s *session.Session, from int) error {
	dir := "forward"
	if s.StepIndex < from {
		dir = "back"
	}
	m.changed.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", dir)))
	return nil
}

// OnSessionEnded implements ext.SessionEnded.
func (m *MetricsExtension) OnSessionEnded(ctx context.Context, s *session.Session, reason session.EndReason) error {
	m.ended.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	m.completed.Record(ctx, int64(s.StepIndex))
	return nil
}
