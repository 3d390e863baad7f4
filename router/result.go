package router

import (
	"errors"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/session"
)

// Result codes.
const (
	CodeNoActiveSession   = "no_active_session"
	CodeInvalidTransition = "invalid_transition"
	CodeStale             = "stale"
	CodeAtLastStep        = "at_last_step"
	CodeAtFirstStep       = "at_first_step"
	CodeStepOutOfRange    = "step_out_of_range"
	CodeWorkflowNotFound  = "workflow_not_found"
	CodeEmptyWorkflow     = "empty_workflow"
	CodeInternal          = "internal"
)

// Result is the outcome of a command. Domain failures are reported here,
// never as transport errors.
type Result struct {
	Success bool             `json:"success"`
	State   *session.Session `json:"state,omitempty"`
	Error   string           `json:"error,omitempty"`
	Code    string           `json:"code,omitempty"`
}

// OK returns a successful result carrying s.
func OK(s *session.Session) Result {
	return Result{Success: true, State: s}
}

// Fail converts err into a failed result with a stable code.
func Fail(err error, s *session.Session) Result {
	return Result{Success: false, State: s, Error: err.Error(), Code: CodeFor(err)}
}

// CodeFor maps an error to its result code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, walkthrough.ErrNoActiveSession):
		return CodeNoActiveSession
	case errors.Is(err, walkthrough.ErrStaleEvent):
		return CodeStale
	case errors.Is(err, walkthrough.ErrAtLastStep):
		return CodeAtLastStep
	case errors.Is(err, walkthrough.ErrAtFirstStep):
		return CodeAtFirstStep
	case errors.Is(err, walkthrough.ErrStepOutOfRange):
		return CodeStepOutOfRange
	case errors.Is(err, walkthrough.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, walkthrough.ErrWorkflowNotFound):
		return CodeWorkflowNotFound
	case errors.Is(err, walkthrough.ErrEmptyWorkflow):
		return CodeEmptyWorkflow
	default:
		return CodeInternal
	}
}
