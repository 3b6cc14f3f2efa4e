package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind is the routing class of an inbound envelope.
type Kind int

const (
	KindUnknown Kind = iota
	KindControl
	KindToolCall
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// ParseError describes an inbound frame that could not be decoded. RequestID
// is set when the frame was valid JSON carrying a usable request_id; Type is
// set when its "type" member was still a readable string.
type ParseError struct {
	Reason    string
	Type      Type
	RequestID *RequestID
	Err       error
}

// ToolCall reports whether the rejected frame announced itself as a tool
// call, in which case the reply must be a tool_response.
func (e *ParseError) ToolCall() bool { return e.Type == TypeToolCall }

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid message: %s: %v", e.Reason, e.Err)
	}
	return "invalid message: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a single inbound frame.
func Parse(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		typ, id := salvage(frame)
		return nil, &ParseError{Reason: "malformed JSON", Type: typ, RequestID: id, Err: err}
	}
	if env.Type == "" {
		return nil, &ParseError{Reason: "missing type", RequestID: normalizeID(env.RequestID)}
	}
	return &env, nil
}

// salvage recovers type and request_id from an object whose other members
// failed to decode (for example a non-string "tool").
func salvage(frame []byte) (Type, *RequestID) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(frame, &members); err != nil {
		return "", nil
	}
	var typ Type
	if raw, ok := members["type"]; ok {
		if err := json.Unmarshal(raw, &typ); err != nil {
			typ = ""
		}
	}
	raw, ok := members["request_id"]
	if !ok {
		return typ, nil
	}
	var id RequestID
	if err := json.Unmarshal(raw, &id); err != nil {
		return typ, nil
	}
	return typ, normalizeID(&id)
}

// Classify reports how the server should route env.
func Classify(env *Envelope) Kind {
	if env == nil {
		return KindUnknown
	}
	switch env.Type {
	case TypePing, TypeGetCapabilities, TypeTypingStart, TypeTypingStop, TypePresenceUpdate:
		return KindControl
	case TypeToolCall:
		return KindToolCall
	default:
		return KindUnknown
	}
}
