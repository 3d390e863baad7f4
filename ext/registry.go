package ext

import (
	"context"
	"log/slog"

	"github.com/xraph/walkthrough/session"
)

// Registry implements session.Observer.
var _ session.Observer = (*Registry)(nil)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type sessionStartedEntry struct {
	name string
	hook SessionStarted
}

type stepChangedEntry struct {
	name string
	hook StepChanged
}

type sessionEndedEntry struct {
	name string
	hook SessionEnded
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register every extension before the registry is handed to a
// session.Manager; Register is not synchronized with the emitters.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	sessionStarted []sessionStartedEntry
	stepChanged    []stepChangedEntry
	sessionEnded   []sessionEndedEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(SessionStarted); ok {
		r.sessionStarted = append(r.sessionStarted, sessionStartedEntry{name, h})
	}
	if h, ok := e.(StepChanged); ok {
		r.stepChanged = append(r.stepChanged, stepChangedEntry{name, h})
	}
	if h, ok := e.(SessionEnded); ok {
		r.sessionEnded = append(r.sessionEnded, sessionEndedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Session event emitters
// ──────────────────────────────────────────────────

// EmitSessionStarted notifies all extensions that implement SessionStarted.
func (r *Registry) EmitSessionStarted(ctx context.Context, s *session.Session) {
	for _, e := range r.sessionStarted {
		if err := e.hook.OnSessionStarted(ctx, s); err != nil {
			r.logHookError("OnSessionStarted", e.name, err)
		}
	}
}

// EmitStepChanged notifies all extensions that implement StepChanged.
func (r *Registry) EmitStepChanged(ctx context.Context, s *session.Session, from int) {
	for _, e := range r.stepChanged {
		if err := e.hook.OnStepChanged(ctx, s, from); err != nil {
			r.logHookError("OnStepChanged", e.name, err)
		}
	}
}

// EmitSessionEnded notifies all extensions that implement SessionEnded.
func (r *Registry) EmitSessionEnded(ctx context.Context, s *session.Session, reason session.EndReason) {
	for _, e := range r.sessionEnded {
		if err := e.hook.OnSessionEnded(ctx, s, reason); err != nil {
			r.logHookError("OnSessionEnded", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated; they must not block the session.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
