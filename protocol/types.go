package protocol

import (
	"encoding/json"
	"time"
)

// Type discriminates envelopes on the wire.
type Type string

const (
	TypeWelcome         Type = "welcome"
	TypePing            Type = "ping"
	TypePong            Type = "pong"
	TypeGetCapabilities Type = "get_capabilities"
	TypeCapabilities    Type = "capabilities"
	TypeToolCall        Type = "tool_call"
	TypeToolResponse    Type = "tool_response"
	TypeTypingStart     Type = "typing_start"
	TypeTypingStop      Type = "typing_stop"
	TypePresenceUpdate  Type = "presence_update"
	TypeHeartbeat       Type = "heartbeat"
	TypeError           Type = "error"
)

// Envelope is the decoded form of an inbound frame. Only the members relevant
// to the frame's Type are populated.
type Envelope struct {
	Type         Type            `json:"type"`
	Tool         string          `json:"tool,omitempty"`
	Args         json.RawMessage `json:"args,omitempty"`
	RequestID    *RequestID      `json:"request_id,omitempty"`
	TargetUserID string          `json:"target_user_id,omitempty"`
	Status       string          `json:"status,omitempty"`
}

// UserSummary is the public view of a principal included in welcome frames.
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// ToolSummary describes one catalog entry. Parameters carries the tool's
// parameter schema as it should be rendered to clients.
type ToolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
}

// Welcome is sent once, immediately after a connection is registered.
type Welcome struct {
	Type         Type          `json:"type"`
	Message      string        `json:"message"`
	User         UserSummary   `json:"user"`
	ConnectionID string        `json:"connection_id"`
	Tools        []ToolSummary `json:"tools"`
	Version      string        `json:"version"`
	Features     []string      `json:"features"`
}

// Pong answers a ping. Timestamp is in Unix milliseconds.
type Pong struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// Heartbeat is the periodic liveness frame broadcast to every open session.
type Heartbeat struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// Capabilities answers get_capabilities.
type Capabilities struct {
	Type      Type          `json:"type"`
	Tools     []ToolSummary `json:"tools"`
	Resources []string      `json:"resources"`
	Events    []string      `json:"events"`
}

// ToolResponse is the correlated answer to a tool_call.
type ToolResponse struct {
	Type      Type       `json:"type"`
	RequestID *RequestID `json:"request_id,omitempty"`
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Event is an unsolicited push. It never carries a request id.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Error reports a problem with an inbound frame that is not a tool call
// outcome.
type Error struct {
	Type      Type       `json:"type"`
	Error     string     `json:"error"`
	RequestID *RequestID `json:"request_id,omitempty"`
}

func normalizeID(id *RequestID) *RequestID {
	if id.IsNil() {
		return nil
	}
	return id
}

// NewPong builds a pong stamped with now.
func NewPong(now time.Time) Pong {
	return Pong{Type: TypePong, Timestamp: now.UnixMilli()}
}

// NewHeartbeat builds a heartbeat stamped with now.
func NewHeartbeat(now time.Time) Heartbeat {
	return Heartbeat{Type: TypeHeartbeat, Timestamp: now.UnixMilli()}
}

// NewToolSuccess builds a successful tool response correlated to id.
func NewToolSuccess(id *RequestID, data any) ToolResponse {
	return ToolResponse{Type: TypeToolResponse, RequestID: normalizeID(id), Success: true, Data: data}
}

// NewToolFailure builds a failed tool response correlated to id.
func NewToolFailure(id *RequestID, msg string) ToolResponse {
	return ToolResponse{Type: TypeToolResponse, RequestID: normalizeID(id), Success: false, Error: msg}
}

// NewError builds an error envelope. id may be nil.
func NewError(id *RequestID, msg string) Error {
	return Error{Type: TypeError, Error: msg, RequestID: normalizeID(id)}
}

// NewEvent builds a push envelope of the given type.
func NewEvent(t Type, data any) Event {
	return Event{Type: t, Data: data}
}

// Marshal serializes an outbound value.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
