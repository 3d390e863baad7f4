// Package session owns the single active walkthrough record.
//
// The Manager is the only writer: it serializes every mutation behind one
// mutex, runs the step state machine inside that critical section, and
// persists the result through a Store before returning. Callers get
// copies; mutating a returned Session has no effect on the record.
package session

import (
	"slices"
	"time"

	"github.com/xraph/walkthrough/id"
	"github.com/xraph/walkthrough/machine"
)

// Step is one recorded action of a workflow.
type Step struct {
	Index             int      `json:"index" msgpack:"index" yaml:"-"`
	ActionType        string   `json:"action_type" msgpack:"action_type" yaml:"action_type"`
	Selector          string   `json:"selector" msgpack:"selector" yaml:"selector"`
	FallbackSelectors []string `json:"fallback_selectors,omitempty" msgpack:"fallback_selectors,omitempty" yaml:"fallback_selectors,omitempty"`
	Instruction       string   `json:"instruction" msgpack:"instruction" yaml:"instruction"`
	ExpectedValue     string   `json:"expected_value,omitempty" msgpack:"expected_value,omitempty" yaml:"expected_value,omitempty"`
	URL               string   `json:"url,omitempty" msgpack:"url,omitempty" yaml:"url,omitempty"`
}

// Workflow is a recorded multi-step task.
type Workflow struct {
	ID          int64  `json:"id" msgpack:"id" yaml:"id"`
	Name        string `json:"name" msgpack:"name" yaml:"name"`
	StartingURL string `json:"starting_url" msgpack:"starting_url" yaml:"starting_url"`
	Steps       []Step `json:"steps" msgpack:"steps" yaml:"steps"`
}

// Status is the coarse lifecycle status of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusTimedOut  Status = "timed_out"
)

// EndReason explains why a session ended.
type EndReason string

const (
	ReasonUserExit   EndReason = "user_exit"
	ReasonError      EndReason = "error"
	ReasonTimeout    EndReason = "timeout"
	ReasonCompleted  EndReason = "completed"
	ReasonReplaced   EndReason = "replaced"
	ReasonTabsClosed EndReason = "tabs_closed"
)

// status maps an end reason to the final status it implies. Reasons that
// imply nothing keep the current status.
func (r EndReason) status(cur Status) Status {
	switch r {
	case ReasonError:
		return StatusError
	case ReasonTimeout:
		return StatusTimedOut
	case ReasonCompleted:
		return StatusCompleted
	}
	return cur
}

// Tabs is the set of browser tabs participating in a session. IDs is kept
// sorted and free of duplicates.
type Tabs struct {
	Primary int   `json:"primary_tab_id" msgpack:"primary_tab_id"`
	IDs     []int `json:"tab_ids" msgpack:"tab_ids"`
}

// Has reports whether tab is a member or the primary.
func (t Tabs) Has(tab int) bool {
	if tab == t.Primary {
		return true
	}
	_, ok := slices.BinarySearch(t.IDs, tab)
	return ok
}

func (t *Tabs) add(tab int) bool {
	i, ok := slices.BinarySearch(t.IDs, tab)
	if ok {
		return false
	}
	t.IDs = slices.Insert(t.IDs, i, tab)
	return true
}

func (t *Tabs) remove(tab int) bool {
	i, ok := slices.BinarySearch(t.IDs, tab)
	if !ok {
		return false
	}
	t.IDs = slices.Delete(t.IDs, i, i+1)
	return true
}

// Session is the persisted walkthrough record.
type Session struct {
	ID           id.SessionID `json:"session_id" msgpack:"session_id"`
	WorkflowID   int64        `json:"workflow_id" msgpack:"workflow_id"`
	WorkflowName string       `json:"workflow_name" msgpack:"workflow_name"`
	StartingURL  string       `json:"starting_url" msgpack:"starting_url"`
	Steps        []Step       `json:"steps" msgpack:"steps"`

	machine.Snapshot `msgpack:",inline"`

	Status Status `json:"status" msgpack:"status"`
	Tabs   Tabs   `json:"tabs" msgpack:"tabs"`

	StartedAt time.Time `json:"started_at" msgpack:"started_at"`
	UpdatedAt time.Time `json:"last_updated_at" msgpack:"last_updated_at"`
	ExpiresAt time.Time `json:"expires_at" msgpack:"expires_at"`
}

// CurrentStep returns the step under the cursor. It returns false once the
// session is completed.
func (s *Session) CurrentStep() (Step, bool) {
	if s.StepIndex < 0 || s.StepIndex >= len(s.Steps) {
		return Step{}, false
	}
	return s.Steps[s.StepIndex], true
}

// IsMember reports whether tab participates in the session.
func (s *Session) IsMember(tab int) bool { return s.Tabs.Has(tab) }

// Expired reports whether the record is past its TTL at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Steps = slices.Clone(s.Steps)
	cp.Snapshot = s.Snapshot.Clone()
	cp.Tabs.IDs = slices.Clone(s.Tabs.IDs)
	return &cp
}

// Patch carries the fields Update may change. Zero values leave the
// record untouched.
type Patch struct {
	Status Status
	Error  *machine.StepError
}
