package tools

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"

	"github.com/invopop/jsonschema"
)

// Property describes one parameter.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	MinLength   *int      `json:"minLength,omitempty"`
	MaxLength   *int      `json:"maxLength,omitempty"`
	MinItems    *int      `json:"minItems,omitempty"`
	MaxItems    *int      `json:"maxItems,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// Schema is the object schema describing a tool's arguments.
type Schema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`

	// order records property declaration order.
	order []string
}

// Field is one entry passed to Object.
type Field struct {
	Name     string
	Property Property
	Required bool
}

// Object builds a Schema from fields, preserving their order. Unknown keys are
// rejected.
func Object(fields ...Field) Schema {
	s := Schema{Type: "object", Properties: make(map[string]Property, len(fields))}
	for _, f := range fields {
		if _, dup := s.Properties[f.Name]; dup {
			continue
		}
		s.Properties[f.Name] = f.Property
		s.order = append(s.order, f.Name)
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// PropertyNames returns property names in declaration order. Schemas built
// without order information fall back to sorted names.
func (s Schema) PropertyNames() []string {
	if len(s.order) == len(s.Properties) {
		return append([]string(nil), s.order...)
	}
	names := make([]string, 0, len(s.Properties))
	for n := range s.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SchemaFor reflects the argument struct A into a Schema. Fields without
// `omitempty` are required. Unknown keys are rejected.
func SchemaFor[A any]() Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	var zero A
	s := r.Reflect(&zero)
	out := Schema{Type: "object", Properties: map[string]Property{}}
	if s == nil {
		return out
	}
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			out.Properties[el.Key] = toProperty(el.Value)
			out.order = append(out.order, el.Key)
		}
	}
	out.Required = append(out.Required, s.Required...)
	return out
}

func toProperty(s *jsonschema.Schema) Property {
	if s == nil {
		return Property{}
	}
	p := Property{
		Type:        s.Type,
		Description: s.Description,
		Minimum:     numberPtr(s.Minimum),
		Maximum:     numberPtr(s.Maximum),
		MinLength:   uintPtr(s.MinLength),
		MaxLength:   uintPtr(s.MaxLength),
		MinItems:    uintPtr(s.MinItems),
		MaxItems:    uintPtr(s.MaxItems),
	}
	if len(s.Enum) > 0 {
		p.Enum = append([]any(nil), s.Enum...)
	}
	if s.Type == "array" && s.Items != nil {
		item := toProperty(s.Items)
		p.Items = &item
	}
	return p
}

func numberPtr(n json.Number) *float64 {
	if n == "" {
		return nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil
	}
	return &f
}

func uintPtr(v *uint64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

// typeOf reports the JSON type name of a decoded value.
func typeOf(v any) string {
	switch n := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if n == float64(int64(n)) {
			return "integer"
		}
		return "number"
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return "integer"
		}
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return "integer"
		case reflect.Float32, reflect.Float64:
			return "number"
		case reflect.Slice, reflect.Array:
			return "array"
		case reflect.Map:
			return "object"
		}
		return "unknown"
	}
}
