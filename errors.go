package walkthrough

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("walkthrough: no store configured")
	ErrStoreClosed = errors.New("walkthrough: store closed")

	// Not found errors.
	ErrSessionNotFound  = errors.New("walkthrough: session not found")
	ErrWorkflowNotFound = errors.New("walkthrough: workflow not found")
	ErrNoActiveSession  = errors.New("walkthrough: no active session")

	// State errors.
	ErrInvalidTransition = errors.New("walkthrough: invalid state transition")
	ErrStaleEvent        = errors.New("walkthrough: event does not match current step")
	ErrAtLastStep        = errors.New("walkthrough: already at last step")
	ErrAtFirstStep       = errors.New("walkthrough: already at first step")
	ErrStepOutOfRange    = errors.New("walkthrough: step index out of range")
	ErrEmptyWorkflow     = errors.New("walkthrough: workflow has no steps")

	// Boundary errors.
	ErrForbiddenOrigin  = errors.New("walkthrough: origin not allowed")
	ErrMalformedMessage = errors.New("walkthrough: malformed message")
	ErrTabGone          = errors.New("walkthrough: tab is gone")
)
