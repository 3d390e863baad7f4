// Package journal records the execution log pages report while a
// walkthrough runs, for later analytics.
package journal

import (
	"encoding/json"
	"time"

	"github.com/xraph/walkthrough/id"
)

// Entry is one execution log record.
type Entry struct {
	ID         id.LogID        `json:"id"`
	SessionID  string          `json:"session_id,omitempty"`
	WorkflowID int64           `json:"workflow_id,omitempty"`
	TabID      int             `json:"tab_id"`
	StepIndex  int             `json:"step_index"`
	Kind       string          `json:"kind"`
	Message    string          `json:"message,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter narrows a listing. Zero fields match everything.
type Filter struct {
	SessionID string
	Limit     int
}
