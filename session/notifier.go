package session

import "context"

// Notice kinds sent to tabs.
const (
	NoticeEnded       = "session.ended"
	NoticeStepChanged = "session.step_changed"
)

// Notice is a message pushed to a tab about the session.
type Notice struct {
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	Reason    EndReason      `json:"reason,omitempty"`
	State     string         `json:"machine_state,omitempty"`
	StepIndex int            `json:"step_index"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Notifier delivers notices to tabs. Delivery is best-effort: the manager
// logs and drops errors.
type Notifier interface {
	Notify(ctx context.Context, tab int, n Notice) error
}

// Observer receives session lifecycle callbacks. ext.Registry implements
// it. Callbacks run after the manager released its lock.
type Observer interface {
	EmitSessionStarted(ctx context.Context, s *Session)
	EmitStepChanged(ctx context.Context, s *Session, from int)
	EmitSessionEnded(ctx context.Context, s *Session, reason EndReason)
}
