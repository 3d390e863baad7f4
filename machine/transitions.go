package machine

import (
	"fmt"
	"slices"

	walkthrough "github.com/xraph/walkthrough"
)

// activeStates are the states in which a session is driving a step.
var activeStates = []State{
	StateInitializing,
	StateShowingStep,
	StateWaitingAction,
	StateTransitioning,
	StateNavigating,
	StateHealing,
	StateError,
}

// transitions lists the states each event is legal from. Events that are
// legal but have no effect in some states (TabReady while TRANSITIONING)
// are listed in noops instead.
var transitions = map[EventType][]State{
	EventStart:           {StateIdle},
	EventTabReady:        {StateInitializing, StateNavigating, StateShowingStep, StateWaitingAction, StateHealing},
	EventElementFound:    {StateShowingStep},
	EventElementNotFound: {StateShowingStep},
	EventHealSuccess:     {StateHealing},
	EventHealFailed:      {StateHealing},
	EventActionDetected:  {StateWaitingAction},
	EventActionInvalid:   {StateWaitingAction},
	EventNextStep:        {StateTransitioning, StateNavigating},
	EventPrevStep:        activeStates,
	EventJumpTo:          activeStates,
	EventRetry:           {StateError, StateHealing, StateShowingStep, StateWaitingAction},
	EventSkipStep:        activeStates,
	EventURLChanged:      activeStates,
	EventPageLoaded:      activeStates,
	EventFail:            activeStates,
}

var noops = map[EventType][]State{
	EventTabReady: {StateTransitioning, StateError, StateCompleted},
}

// CanApply reports whether ev is legal from state. It does not check step
// indexes; Apply does that.
func CanApply(state State, ev Event) bool {
	t := ev.Type()
	if n, ok := ev.(NextStep); ok && n.Manual {
		return state.IsActive()
	}
	return slices.Contains(transitions[t], state) || slices.Contains(noops[t], state)
}

// Apply computes the snapshot that results from ev. The input is never
// modified. Illegal pairs return walkthrough.ErrInvalidTransition, events
// carrying a step index other than the current one return
// walkthrough.ErrStaleEvent, and in both cases the input is returned
// unchanged.
func Apply(s Snapshot, ev Event) (Snapshot, error) {
	if ev == nil {
		return s, fmt.Errorf("%w: nil event", walkthrough.ErrInvalidTransition)
	}
	if idx, ok := stepIndexOf(ev); ok && idx != s.StepIndex {
		return s, fmt.Errorf("%w: %s for step %d, current step is %d",
			walkthrough.ErrStaleEvent, ev.Type(), idx, s.StepIndex)
	}
	if slices.Contains(noops[ev.Type()], s.State) {
		return s, nil
	}
	if !CanApply(s.State, ev) {
		return s, invalid(s.State, ev)
	}

	next := s.Clone()

	switch e := ev.(type) {
	case Start:
		next = New(s.TotalSteps)
		next.State = StateInitializing

	case TabReady:
		settle(&next)

	case ElementFound:
		next.State = StateWaitingAction

	case ElementNotFound:
		next.State = StateHealing

	case HealSuccess:
		if next.HealedSteps == nil {
			next.HealedSteps = make(map[int]Heal)
		}
		next.HealedSteps[e.StepIndex] = Heal{
			Selector:    e.Selector,
			Confidence:  e.Confidence,
			AIValidated: e.AIValidated,
		}
		next.State = StateWaitingAction

	case HealFailed:
		msg := e.Reason
		if msg == "" {
			msg = "element could not be healed"
		}
		next.State = StateError
		next.Error = &StepError{Code: CodeHealingFailed, Message: msg, StepIndex: s.StepIndex}

	case ActionDetected:
		next.State = StateTransitioning
		next.LastInvalidReason = ""
		if e.CausesNavigation {
			next.Navigation.InProgress = true
		}

	case ActionInvalid:
		if next.InvalidAttempts == nil {
			next.InvalidAttempts = make(map[int]int)
		}
		next.InvalidAttempts[e.StepIndex]++
		next.LastInvalidReason = e.Reason

	case NextStep:
		if e.Manual && s.IsLastStep() {
			return s, fmt.Errorf("%w: step %d of %d", walkthrough.ErrAtLastStep, s.StepIndex, s.TotalSteps)
		}
		advance(&next)

	case SkipStep:
		advance(&next)

	case PrevStep:
		if s.StepIndex <= 0 {
			return s, walkthrough.ErrAtFirstStep
		}
		enter(&next, s.StepIndex-1)

	case JumpTo:
		if e.Index < 0 || e.Index >= s.TotalSteps {
			return s, fmt.Errorf("%w: %d not in [0,%d)", walkthrough.ErrStepOutOfRange, e.Index, s.TotalSteps)
		}
		enter(&next, e.Index)

	case Retry:
		if next.RetryAttempts == nil {
			next.RetryAttempts = make(map[int]int)
		}
		next.RetryAttempts[s.StepIndex]++
		next.State = StateShowingStep
		next.Error = nil
		next.LastInvalidReason = ""

	case URLChanged:
		next.Navigation.InProgress = true
		next.Navigation.ExpectedURL = e.URL
		switch s.State {
		case StateTransitioning:
			next.State = StateNavigating
			next.Navigation.AdvancePending = true
		case StateShowingStep, StateWaitingAction, StateHealing:
			next.State = StateNavigating
			next.Navigation.AdvancePending = false
		}

	case PageLoaded:
		if s.State == StateNavigating {
			settle(&next)
		} else {
			next.Navigation = Navigation{}
		}

	case Fail:
		code := e.Code
		if code == "" {
			code = CodeFatal
		}
		next.State = StateError
		next.Error = &StepError{Code: code, Message: e.Message, StepIndex: s.StepIndex}

	default:
		return s, invalid(s.State, ev)
	}

	return next, nil
}

// ApplyAll applies events in order and stops at the first error, returning
// the original snapshot in that case.
func ApplyAll(s Snapshot, events ...Event) (Snapshot, error) {
	cur := s
	for _, ev := range events {
		next, err := Apply(cur, ev)
		if err != nil {
			return s, err
		}
		cur = next
	}
	return cur, nil
}

// settle ends a page transition: a pending advance resumes in
// TRANSITIONING, anything else re-renders the current step.
func settle(s *Snapshot) {
	if s.State == StateNavigating && s.Navigation.AdvancePending {
		s.State = StateTransitioning
	} else {
		s.State = StateShowingStep
	}
	s.Navigation = Navigation{}
}

// advance moves the cursor forward by one, completing past the last step.
func advance(s *Snapshot) {
	idx := s.StepIndex + 1
	if idx >= s.TotalSteps {
		s.StepIndex = s.TotalSteps
		s.State = StateCompleted
		s.Error = nil
		s.Navigation.AdvancePending = false
		s.LastInvalidReason = ""
		return
	}
	enter(s, idx)
}

// enter puts the cursor on idx and starts rendering it.
func enter(s *Snapshot, idx int) {
	s.StepIndex = idx
	s.State = StateShowingStep
	s.Error = nil
	s.LastInvalidReason = ""
	s.Navigation.AdvancePending = false
	delete(s.RetryAttempts, idx)
}

func stepIndexOf(ev Event) (int, bool) {
	switch e := ev.(type) {
	case ElementFound:
		return e.StepIndex, true
	case ElementNotFound:
		return e.StepIndex, true
	case HealSuccess:
		return e.StepIndex, true
	case HealFailed:
		return e.StepIndex, true
	case ActionDetected:
		return e.StepIndex, true
	case ActionInvalid:
		return e.StepIndex, true
	}
	return 0, false
}

func invalid(state State, ev Event) error {
	return fmt.Errorf("%w: %s from %s", walkthrough.ErrInvalidTransition, ev.Type(), state)
}
