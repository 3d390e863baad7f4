package machine

// EventType names a machine event.
type EventType string

const (
	EventStart           EventType = "START"
	EventTabReady        EventType = "TAB_READY"
	EventElementFound    EventType = "ELEMENT_FOUND"
	EventElementNotFound EventType = "ELEMENT_NOT_FOUND"
	EventHealSuccess     EventType = "HEAL_SUCCESS"
	EventHealFailed      EventType = "HEAL_FAILED"
	EventActionDetected  EventType = "ACTION_DETECTED"
	EventActionInvalid   EventType = "ACTION_INVALID"
	EventNextStep        EventType = "NEXT_STEP"
	EventPrevStep        EventType = "PREV_STEP"
	EventJumpTo          EventType = "JUMP_TO"
	EventRetry           EventType = "RETRY"
	EventSkipStep        EventType = "SKIP_STEP"
	EventURLChanged      EventType = "URL_CHANGED"
	EventPageLoaded      EventType = "PAGE_LOADED"
	EventFail            EventType = "FAIL"
)

// Event is the closed set of inputs accepted by Apply. Only the types in
// this package implement it.
type Event interface {
	Type() EventType
	event()
}

// Start moves a fresh session out of IDLE.
type Start struct{}

// TabReady reports that a member tab loaded and can render the step.
type TabReady struct {
	TabID int
	URL   string
}

// ElementFound reports the step target was located.
type ElementFound struct{ StepIndex int }

// ElementNotFound reports the step target is missing.
type ElementNotFound struct{ StepIndex int }

// HealSuccess reports a repaired locator for the step.
type HealSuccess struct {
	StepIndex   int
	Selector    string
	Confidence  float64
	AIValidated bool
}

// HealFailed reports the healer gave up on the step.
type HealFailed struct {
	StepIndex int
	Reason    string
}

// ActionDetected reports a valid user action on the step target.
type ActionDetected struct {
	StepIndex        int
	ActionType       string
	CausesNavigation bool
}

// ActionInvalid reports a wrong action; Reason is a normalized code.
type ActionInvalid struct {
	StepIndex int
	Reason    string
}

// NextStep advances the cursor. Manual advances bypass action validation
// but never run past the last step.
type NextStep struct{ Manual bool }

// PrevStep moves the cursor back by one.
type PrevStep struct{}

// JumpTo sets the cursor directly.
type JumpTo struct{ Index int }

// Retry re-renders the current step.
type Retry struct{}

// SkipStep advances without a detected action.
type SkipStep struct{}

// URLChanged marks the start of a page transition.
type URLChanged struct{ URL string }

// PageLoaded marks the end of a page transition.
type PageLoaded struct{ URL string }

// Fail moves the machine into ERROR with a fatal reason.
type Fail struct {
	Code    string
	Message string
}

func (Start) Type() EventType           { return EventStart }
func (TabReady) Type() EventType        { return EventTabReady }
func (ElementFound) Type() EventType    { return EventElementFound }
func (ElementNotFound) Type() EventType { return EventElementNotFound }
func (HealSuccess) Type() EventType     { return EventHealSuccess }
func (HealFailed) Type() EventType      { return EventHealFailed }
func (ActionDetected) Type() EventType  { return EventActionDetected }
func (ActionInvalid) Type() EventType   { return EventActionInvalid }
func (NextStep) Type() EventType        { return EventNextStep }
func (PrevStep) Type() EventType        { return EventPrevStep }
func (JumpTo) Type() EventType          { return EventJumpTo }
func (Retry) Type() EventType           { return EventRetry }
func (SkipStep) Type() EventType        { return EventSkipStep }
func (URLChanged) Type() EventType      { return EventURLChanged }
func (PageLoaded) Type() EventType      { return EventPageLoaded }
func (Fail) Type() EventType            { return EventFail }

func (Start) event()           {}
func (TabReady) event()        {}
func (ElementFound) event()    {}
func (ElementNotFound) event() {}
func (HealSuccess) event()     {}
func (HealFailed) event()      {}
func (ActionDetected) event()  {}
func (ActionInvalid) event()   {}
func (NextStep) event()        {}
func (PrevStep) event()        {}
func (JumpTo) event()          {}
func (Retry) event()           {}
func (SkipStep) event()        {}
func (URLChanged) event()      {}
func (PageLoaded) event()      {}
func (Fail) event()            {}
