// Package wire implements the page-context wire protocol: a frame-based
// message exchange between a browser tab's content script and the
// walkthrough daemon, transported over WebSocket.
//
// A connection opens with a hello frame that names the tab and the
// frame format. After that every request frame is answered by exactly one
// response or error frame, and session notices for the tab arrive as
// event frames.
package wire

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the wire message envelope. Every message exchanged over
// the protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g., "command.next").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Token carries auth credentials (only on the hello frame).
	Token string `json:"token,omitempty" msgpack:"token,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Channel names the stream topic for event frames.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Credits replenishes flow-control credits.
	Credits int `json:"credits,omitempty" msgpack:"credits,omitempty"`

	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in an error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ── Well-known methods ──────────────────────────────

const (
	MethodHello = "hello"

	// Navigation commands.
	MethodNext         = "command.next"
	MethodPrev         = "command.prev"
	MethodJumpTo       = "command.jump_to"
	MethodRetry        = "command.retry"
	MethodSkip         = "command.skip"
	MethodExit         = "command.exit"
	MethodGetState     = "command.get_state"
	MethodReportAction = "command.report_action"

	// Page notices.
	MethodTabReady      = "tab.ready"
	MethodElementStatus = "element.status"
	MethodHealingResult = "healing.result"
	MethodLogAppend     = "log.append"
	MethodSPANavigation = "navigation.spa"
	MethodTabIdentity   = "tab.identity"
	MethodTabOpened     = "tab.opened"
	MethodTabClosed     = "tab.closed"

	MethodStart = "walkthrough.start"

	// Subscription methods.
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest      = 400
	ErrCodeUnauthorized    = 401
	ErrCodeForbidden       = 403
	ErrCodeMethodNotFound  = 405
	ErrCodeTooManyRequests = 429
	ErrCodeInternal        = 500
)

// ── Request/Response payloads ───────────────────────

// HelloRequest opens a connection for a tab.
type HelloRequest struct {
	Token  string `json:"token"`
	TabID  int    `json:"tab_id"`
	Format string `json:"format,omitempty"` // "json" (default) or "msgpack"
}

// HelloResponse confirms the connection.
type HelloResponse struct {
	ConnID string `json:"conn_id"`
	TabID  int    `json:"tab_id"`
	Format string `json:"format"`
}

// JumpToRequest moves the cursor to a step.
type JumpToRequest struct {
	StepIndex int `json:"step_index"`
}

// ExitRequest ends the session.
type ExitRequest struct {
	Reason string `json:"reason,omitempty"`
}

// TabClosedRequest reports a closed tab. A zero TabID means the
// connection's own tab.
type TabClosedRequest struct {
	TabID int `json:"tab_id,omitempty"`
}

// SubscribeRequest subscribes to a stream topic.
type SubscribeRequest struct {
	Channel string `json:"channel"`
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// NewRequestFrame creates a new request frame.
func NewRequestFrame(method string, data any) (*Frame, error) {
	f := &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameRequest,
		Method:    method,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return f, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       GenerateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for a stream topic.
func NewEventFrame(channel string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GenerateFrameID returns a new unique frame ID.
func GenerateFrameID() string { return uuid.NewString() }
