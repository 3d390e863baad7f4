// Package machine implements the walkthrough step state machine.
//
// The machine is a pure reducer: Apply takes a Snapshot and one Event and
// returns the next Snapshot. It never performs I/O and never mutates its
// input, so the session manager can evaluate it inside its critical
// section and persist the result atomically.
package machine

// State is a step state machine state.
type State string

const (
	// StateIdle is the zero state before a session starts.
	StateIdle State = "IDLE"
	// StateInitializing means the session exists but no tab reported ready yet.
	StateInitializing State = "INITIALIZING"
	// StateShowingStep means the current step is being rendered on the page.
	StateShowingStep State = "SHOWING_STEP"
	// StateWaitingAction means the target element was found and the user
	// is expected to act on it.
	StateWaitingAction State = "WAITING_ACTION"
	// StateTransitioning means a valid action was seen and an advance is due.
	StateTransitioning State = "TRANSITIONING"
	// StateNavigating means a page transition is in flight.
	StateNavigating State = "NAVIGATING"
	// StateHealing means the target element was not found and the healer
	// is looking for a replacement locator.
	StateHealing State = "HEALING"
	// StateError is a recoverable failure; Retry or SkipStep leave it.
	StateError State = "ERROR"
	// StateCompleted is terminal: every step was completed or skipped.
	StateCompleted State = "COMPLETED"
)

// IsTerminal reports whether no further step events apply.
func (s State) IsTerminal() bool { return s == StateCompleted }

// IsActive reports whether the machine is driving a step.
func (s State) IsActive() bool {
	return s != StateIdle && s != StateCompleted && s != ""
}

// CanAdvance reports whether a scheduled advance may fire in this state.
func (s State) CanAdvance() bool {
	return s == StateTransitioning || s == StateNavigating
}

// Navigation tracks an in-flight page transition.
type Navigation struct {
	InProgress  bool   `json:"in_progress" msgpack:"in_progress"`
	ExpectedURL string `json:"expected_url,omitempty" msgpack:"expected_url,omitempty"`

	// AdvancePending is set when a navigation interrupted TRANSITIONING, so
	// the advance is resumed once the page settles.
	AdvancePending bool `json:"advance_pending,omitempty" msgpack:"advance_pending,omitempty"`
}

// Heal records a successful selector repair for a step.
type Heal struct {
	Selector    string  `json:"selector,omitempty" msgpack:"selector,omitempty"`
	Confidence  float64 `json:"confidence" msgpack:"confidence"`
	AIValidated bool    `json:"ai_validated" msgpack:"ai_validated"`
}

// Error codes carried by StepError.
const (
	CodeHealingFailed = "healing_failed"
	CodeFatal         = "fatal"
)

// StepError is the last fatal error detail for the session.
type StepError struct {
	Code      string `json:"code" msgpack:"code"`
	Message   string `json:"message" msgpack:"message"`
	StepIndex int    `json:"step_index" msgpack:"step_index"`
}

// Snapshot is the machine-owned part of a session record.
type Snapshot struct {
	State      State      `json:"machine_state" msgpack:"machine_state"`
	StepIndex  int        `json:"current_step_index" msgpack:"current_step_index"`
	TotalSteps int        `json:"total_steps" msgpack:"total_steps"`
	Navigation Navigation `json:"navigation" msgpack:"navigation"`

	RetryAttempts     map[int]int  `json:"retry_attempts,omitempty" msgpack:"retry_attempts,omitempty"`
	InvalidAttempts   map[int]int  `json:"invalid_attempts,omitempty" msgpack:"invalid_attempts,omitempty"`
	LastInvalidReason string       `json:"last_invalid_reason,omitempty" msgpack:"last_invalid_reason,omitempty"`
	HealedSteps       map[int]Heal `json:"healed_steps,omitempty" msgpack:"healed_steps,omitempty"`
	Error             *StepError   `json:"error,omitempty" msgpack:"error,omitempty"`
}

// New returns an idle snapshot for a workflow with total steps.
func New(total int) Snapshot {
	return Snapshot{State: StateIdle, TotalSteps: total}
}

// IsLastStep reports whether the cursor is on the final step.
func (s Snapshot) IsLastStep() bool {
	return s.StepIndex >= s.TotalSteps-1
}

// Retries returns the retry count for the given step.
func (s Snapshot) Retries(step int) int { return s.RetryAttempts[step] }

// InvalidCount returns the invalid-action count for the given step.
func (s Snapshot) InvalidCount(step int) int { return s.InvalidAttempts[step] }

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.RetryAttempts = copyCounts(s.RetryAttempts)
	out.InvalidAttempts = copyCounts(s.InvalidAttempts)
	if s.HealedSteps != nil {
		out.HealedSteps = make(map[int]Heal, len(s.HealedSteps))
		for k, v := range s.HealedSteps {
			out.HealedSteps[k] = v
		}
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

func copyCounts(in map[int]int) map[int]int {
	if in == nil {
		return nil
	}
	out := make(map[int]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
