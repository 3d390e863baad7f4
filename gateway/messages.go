package gateway

import (
	"encoding/json"

	"github.com/xraph/walkthrough/session"
)

// ReadyNotice is sent by a page once its content script can render.
type ReadyNotice struct {
	TabID int    `json:"tab_id"`
	URL   string `json:"url"`
}

// ReadyResponse tells the page whether to render a walkthrough.
type ReadyResponse struct {
	HasActiveSession bool             `json:"has_active_session"`
	State            *session.Session `json:"state,omitempty"`
}

// ElementStatus reports whether the step target was located.
type ElementStatus struct {
	StepIndex int  `json:"step_index"`
	Found     bool `json:"found"`
}

// ActionReport describes a user action on the step target.
type ActionReport struct {
	StepIndex        int    `json:"step_index"`
	ActionType       string `json:"action_type"`
	Valid            bool   `json:"valid"`
	Reason           string `json:"reason,omitempty"`
	CausesNavigation bool   `json:"causes_navigation,omitempty"`
}

// HealingOutcome is the healer's verdict for one step.
type HealingOutcome struct {
	Success       bool    `json:"success"`
	Confidence    float64 `json:"confidence"`
	AIValidated   bool    `json:"ai_validated"`
	FailureReason string  `json:"failure_reason,omitempty"`
	Selector      string  `json:"selector,omitempty"`
}

// HealingResult carries a healing outcome for a step.
type HealingResult struct {
	StepIndex int            `json:"step_index"`
	Result    HealingOutcome `json:"result"`
}

// SPANotice reports a client-side route change.
type SPANotice struct {
	URL string `json:"url"`
}

// LogEntry is an execution log record from a page.
type LogEntry struct {
	Kind      string          `json:"kind"`
	StepIndex int             `json:"step_index"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// TabIdentity tells a page its own tab id.
type TabIdentity struct {
	TabID int `json:"tab_id"`
}

// TabOpened reports a tab opened from another tab.
type TabOpened struct {
	TabID       int `json:"tab_id"`
	OpenerTabID int `json:"opener_tab_id"`
}

// StartRequest asks to start a walkthrough of a catalog workflow.
type StartRequest struct {
	WorkflowID int64 `json:"workflow_id"`
}

// Ack acknowledges a notice. Stale notices are acknowledged with success.
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Normalized invalid-action reasons.
const (
	ReasonWrongElement = "wrong_element"
	ReasonWrongValue   = "wrong_value"
	ReasonWrongAction  = "wrong_action"
	ReasonUnknown      = "unknown"
)
