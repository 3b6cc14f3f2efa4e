package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Args holds decoded tool arguments.
type Args map[string]any

// ParseArgs decodes raw JSON arguments. Absent or null arguments decode to an
// empty Args. Anything other than a JSON object is a validation error.
func ParseArgs(raw json.RawMessage) (Args, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Args{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, &ValidationError{Field: "args", Reason: "must be an object"}
	}
	return Args(out), nil
}

// String returns the string value of key or "".
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns the integral value of key or def when absent or not a number.
func (a Args) Int(key string, def int) int {
	if f, ok := toFloat(a[key]); ok {
		return int(f)
	}
	return def
}

// Bool returns the boolean value of key or false.
func (a Args) Bool(key string) bool {
	b, _ := a[key].(bool)
	return b
}

// Has reports whether key is present and non-null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Strings returns the string elements of an array-valued key.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Decode populates the struct pointed to by into.
func (a Args) Decode(into any) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("tools: encode args: %w", err)
	}
	if err := json.Unmarshal(b, into); err != nil {
		return fmt.Errorf("tools: decode args: %w", err)
	}
	return nil
}
