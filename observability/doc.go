// Package observability provides an OpenTelemetry metrics extension for
// walkthrough. The MetricsExtension implements lifecycle hooks to record
// session starts, step moves, and session ends by reason.
//
// For per-message tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
