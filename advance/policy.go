// Package advance schedules the automatic step advance that follows a
// valid user action.
//
// A Policy maps the action type to a delay. A Scheduler holds at most one
// pending Task per session; scheduling again or cancelling replaces it.
// Tasks carry the Key they were scheduled for so the firing callback can
// check, against the live record, that the advance is still wanted.
package advance

import (
	"strings"
	"time"

	walkthrough "github.com/xraph/walkthrough"
)

// Action types with special advance handling.
const (
	ActionNavigate = "navigate"
	ActionSubmit   = "submit"
	ActionClick    = "click"
	ActionSelect   = "select"
	ActionChange   = "change"
)

// Policy computes the delay between a valid action and the advance.
// It is stateless and safe for concurrent use.
type Policy struct {
	Click   time.Duration
	Select  time.Duration
	Default time.Duration
}

// NewPolicy returns the policy configured in cfg.
func NewPolicy(cfg walkthrough.Config) Policy {
	return Policy{
		Click:   cfg.ClickAdvanceDelay,
		Select:  cfg.SelectAdvanceDelay,
		Default: cfg.DefaultAdvanceDelay,
	}
}

// Delay returns how long to wait after an action of the given type.
// Actions that navigate advance immediately: the page is going away and
// readiness on the next page resumes the walkthrough.
func (p Policy) Delay(actionType string, causesNavigation bool) time.Duration {
	if causesNavigation {
		return 0
	}
	switch strings.ToLower(strings.TrimSpace(actionType)) {
	case ActionNavigate, ActionSubmit:
		return 0
	case ActionClick:
		return p.Click
	case ActionSelect, ActionChange:
		return p.Select
	default:
		return p.Default
	}
}
