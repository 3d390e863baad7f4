package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/walkthrough/ext"
	"github.com/xraph/walkthrough/session"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.SessionStarted = (*Extension)(nil)
	_ ext.StepChanged    = (*Extension)(nil)
	_ ext.SessionEnded   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one structured audit record.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges session lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// OnSessionStarted implements ext.SessionStarted.
func (e *Extension) OnSessionStarted(ctx context.Context, s *session.Session) error {
	return e.record(ctx, ActionSessionStarted, SeverityInfo, OutcomeSuccess, s, nil,
		"workflow_id", s.WorkflowID,
		"total_steps", s.TotalSteps,
		"primary_tab", s.Tabs.Primary,
	)
}

// OnStepChanged implements ext.StepChanged.
func (e *Extension) OnStepChanged(ctx context.Context, s *session.Session, from int) error {
	return e.record(ctx, ActionStepChanged, SeverityInfo, OutcomeSuccess, s, nil,
		"workflow_id", s.WorkflowID,
		"from_step", from,
		"to_step", s.StepIndex,
	)
}

// OnSessionEnded implements ext.SessionEnded.
func (e *Extension) OnSessionEnded(ctx context.Context, s *session.Session, reason session.EndReason) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	var err error
	switch reason {
	case session.ReasonError:
		severity, outcome = SeverityWarning, OutcomeFailure
		err = fmt.Errorf("session ended at step %d", s.StepIndex)
		if s.Error != nil {
			err = fmt.Errorf("step %d: %s: %s", s.Error.StepIndex, s.Error.Code, s.Error.Message)
		}
	case session.ReasonTimeout:
		severity = SeverityWarning
	}
	return e.record(ctx, ActionSessionEnded, severity, outcome, s, err,
		"workflow_id", s.WorkflowID,
		"reason", string(reason),
		"step_index", s.StepIndex,
		"total_steps", s.TotalSteps,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	s *session.Session,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceSession,
		Category:   CategorySession,
		ResourceID: s.ID.String(),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"session_id", s.ID.String(),
			"error", recErr,
		)
	}
	return nil
}
