// Package ext defines the extension system for the walkthrough coordinator.
// Extensions are notified of session lifecycle events (started, step
// changed, ended) and can react to them: fan-out to tabs, cancelling
// timers, metrics, audit logs.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"

	"github.com/xraph/walkthrough/session"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Session lifecycle hooks
// ──────────────────────────────────────────────────

// SessionStarted is called after a session is created.
type SessionStarted interface {
	OnSessionStarted(ctx context.Context, s *session.Session) error
}

// StepChanged is called after the step cursor moved.
type StepChanged interface {
	OnStepChanged(ctx context.Context, s *session.Session, from int) error
}

// SessionEnded is called after a session record was erased. s is the last
// state of the record.
type SessionEnded interface {
	OnSessionEnded(ctx context.Context, s *session.Session, reason session.EndReason) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
