package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a client supplied correlation id. It keeps the JSON literal
// exactly as received so numbers outside float64 precision round-trip
// unchanged and strings stay strings.
type RequestID struct {
	lit []byte
}

// NewRequestID builds an id from a string, an integer, a float or a
// json.Number. Any other type yields an empty id.
func NewRequestID(value any) *RequestID {
	var lit string
	switch v := value.(type) {
	case string:
		lit = strconv.Quote(v)
	case json.Number:
		if !isNumberLiteral([]byte(v)) {
			return &RequestID{}
		}
		lit = v.String()
	case int:
		lit = strconv.FormatInt(int64(v), 10)
	case int32:
		lit = strconv.FormatInt(int64(v), 10)
	case int64:
		lit = strconv.FormatInt(v, 10)
	case uint:
		lit = strconv.FormatUint(uint64(v), 10)
	case uint32:
		lit = strconv.FormatUint(uint64(v), 10)
	case uint64:
		lit = strconv.FormatUint(v, 10)
	case float64:
		lit = strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return &RequestID{}
	}
	return &RequestID{lit: []byte(lit)}
}

// IsNil reports whether no id was supplied.
func (id *RequestID) IsNil() bool {
	return id == nil || len(id.lit) == 0
}

// IsNumber reports whether the client sent a numeric id.
func (id *RequestID) IsNumber() bool {
	return !id.IsNil() && id.lit[0] != '"'
}

// String returns the unquoted string id, the numeric literal verbatim, or ""
// when absent.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if id.IsNumber() {
		return string(id.lit)
	}
	var s string
	if err := json.Unmarshal(id.lit, &s); err != nil {
		return string(id.lit)
	}
	return s
}

// Value returns a string for string ids and a json.Number for numeric ones.
func (id *RequestID) Value() any {
	switch {
	case id.IsNil():
		return nil
	case id.IsNumber():
		return json.Number(id.lit)
	default:
		return id.String()
	}
}

// MarshalJSON writes back the literal the id was built from.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return bytes.Clone(id.lit), nil
}

// UnmarshalJSON accepts a JSON string, number or null.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		id.lit = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("request_id: %w", err)
		}
		id.lit = bytes.Clone(data)
		return nil
	case isNumberLiteral(data):
		id.lit = bytes.Clone(data)
		return nil
	}
	return fmt.Errorf("request_id must be a string or number, got: %s", data)
}

func isNumberLiteral(b []byte) bool {
	if len(b) == 0 || (b[0] != '-' && (b[0] < '0' || b[0] > '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal(b, &n) == nil
}
