// Package stream fans session lifecycle events out to connected page
// contexts. It bridges the ext hooks and the session notifier to
// subscribers via topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	// Session events.
	EventSessionStarted     EventType = "session.started"
	EventSessionStepChanged EventType = "session.step_changed"
	EventSessionEnded       EventType = "session.ended"

	// EventNotice carries a session.Notice addressed to one tab.
	EventNotice EventType = "tab.notice"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// ID is the stream event id (prefix evt).
	ID string `json:"id"`

	// Type identifies the event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the most specific channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// SessionEventData is the payload for session lifecycle events.
type SessionEventData struct {
	SessionID    string `json:"session_id"`
	WorkflowID   int64  `json:"workflow_id"`
	WorkflowName string `json:"workflow_name,omitempty"`
	State        string `json:"machine_state"`
	StepIndex    int    `json:"step_index"`
	TotalSteps   int    `json:"total_steps"`
	FromStep     *int   `json:"from_step,omitempty"`
	Reason       string `json:"reason,omitempty"`
	PrimaryTabID int    `json:"primary_tab_id,omitempty"`
}
