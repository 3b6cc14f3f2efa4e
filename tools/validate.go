package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"unicode/utf8"
)

const reasonRequired = "required"

// ValidationError names the first offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == reasonRequired {
		return "Missing required field: " + e.Field
	}
	return fmt.Sprintf("Invalid field %s: %s", e.Field, e.Reason)
}

// Missing reports whether the error is a required-field failure.
func (e *ValidationError) Missing() bool { return e.Reason == reasonRequired }

func invalid(field, format string, a ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, a...)}
}

// Validate checks args against s. Required fields are checked first, in
// declaration order, and the first missing one is reported. Remaining checks
// run per property in declaration order, then unknown keys.
func Validate(s Schema, args Args) error {
	for _, name := range s.Required {
		if v, ok := args[name]; !ok || v == nil {
			return &ValidationError{Field: name, Reason: reasonRequired}
		}
	}

	for _, name := range s.PropertyNames() {
		v, ok := args[name]
		if !ok || v == nil {
			continue
		}
		if err := checkProperty(name, s.Properties[name], v); err != nil {
			return err
		}
	}

	if !s.AdditionalProperties {
		var unknown []string
		for k := range args {
			if _, ok := s.Properties[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return invalid(unknown[0], "unknown field")
		}
	}
	return nil
}

func checkProperty(field string, p Property, v any) error {
	got := typeOf(v)
	if p.Type != "" && !typeMatches(p.Type, got) {
		return invalid(field, "expected %s, got %s", p.Type, got)
	}

	if len(p.Enum) > 0 && !inEnum(p.Enum, v) {
		return invalid(field, "must be one of %s", enumList(p.Enum))
	}

	switch got {
	case "integer", "number":
		f, _ := toFloat(v)
		if p.Minimum != nil && f < *p.Minimum {
			return invalid(field, "must be >= %s", trimFloat(*p.Minimum))
		}
		if p.Maximum != nil && f > *p.Maximum {
			return invalid(field, "must be <= %s", trimFloat(*p.Maximum))
		}
	case "string":
		n := utf8.RuneCountInString(v.(string))
		if p.MinLength != nil && n < *p.MinLength {
			return invalid(field, "must be at least %d characters", *p.MinLength)
		}
		if p.MaxLength != nil && n > *p.MaxLength {
			return invalid(field, "must be at most %d characters", *p.MaxLength)
		}
	case "array":
		rv := reflect.ValueOf(v)
		if p.MinItems != nil && rv.Len() < *p.MinItems {
			return invalid(field, "must have at least %d items", *p.MinItems)
		}
		if p.MaxItems != nil && rv.Len() > *p.MaxItems {
			return invalid(field, "must have at most %d items", *p.MaxItems)
		}
		if p.Items != nil {
			for i := 0; i < rv.Len(); i++ {
				item := rv.Index(i).Interface()
				if item == nil {
					return invalid(fmt.Sprintf("%s[%d]", field, i), "must not be null")
				}
				if err := checkProperty(fmt.Sprintf("%s[%d]", field, i), *p.Items, item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func typeMatches(want, got string) bool {
	if want == got {
		return true
	}
	return want == "number" && got == "integer"
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if ef, ok := toFloat(e); ok {
			if vf, ok := toFloat(v); ok && ef == vf {
				return true
			}
			continue
		}
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func enumList(enum []any) string {
	b, err := json.Marshal(enum)
	if err != nil {
		return fmt.Sprint(enum)
	}
	return string(b)
}

func trimFloat(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int, int8, int16, int32, int64:
		return float64(reflect.ValueOf(n).Int()), true
	case uint, uint8, uint16, uint32, uint64:
		return float64(reflect.ValueOf(n).Uint()), true
	case json.Number:
		f, err := n.Float64()
		if err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
