package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ggoodman/toolwire/auth"
)

type articleArgs struct {
	Title   string   `json:"title" jsonschema:"minLength=1,maxLength=20,description=Headline"`
	Content string   `json:"content"`
	Status  string   `json:"status,omitempty" jsonschema:"enum=draft,enum=published"`
	Tags    []string `json:"tags,omitempty" jsonschema:"maxItems=2"`
	Limit   int      `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
}

func TestSchemaFor_ReflectsTags(t *testing.T) {
	s := SchemaFor[articleArgs]()
	if got := strings.Join(s.Required, ","); got != "title,content" {
		t.Fatalf("unexpected required: %q", got)
	}
	if got := strings.Join(s.PropertyNames(), ","); got != "title,content,status,tags,limit" {
		t.Fatalf("unexpected order: %q", got)
	}
	title := s.Properties["title"]
	if title.Type != "string" || title.MinLength == nil || *title.MinLength != 1 || title.MaxLength == nil || *title.MaxLength != 20 {
		t.Fatalf("unexpected title property: %+v", title)
	}
	if title.Description != "Headline" {
		t.Fatalf("unexpected description: %q", title.Description)
	}
	if len(s.Properties["status"].Enum) != 2 {
		t.Fatalf("expected status enum, got %+v", s.Properties["status"])
	}
	limit := s.Properties["limit"]
	if limit.Type != "integer" || limit.Minimum == nil || *limit.Minimum != 1 || *limit.Maximum != 100 {
		t.Fatalf("unexpected limit property: %+v", limit)
	}
	tags := s.Properties["tags"]
	if tags.Type != "array" || tags.Items == nil || tags.Items.Type != "string" || *tags.MaxItems != 2 {
		t.Fatalf("unexpected tags property: %+v", tags)
	}
	if s.AdditionalProperties {
		t.Fatalf("expected unknown keys to be rejected")
	}
}

func TestValidate(t *testing.T) {
	s := SchemaFor[articleArgs]()
	cases := []struct {
		name string
		args string
		want string
	}{
		{"ok", `{"title":"Hi","content":"x"}`, ""},
		{"ok all fields", `{"title":"Hi","content":"x","status":"published","tags":["a"],"limit":5}`, ""},
		{"first missing required wins", `{}`, "Missing required field: title"},
		{"second missing", `{"title":"Hi"}`, "Missing required field: content"},
		{"null counts as missing", `{"title":null,"content":"x"}`, "Missing required field: title"},
		{"wrong type", `{"title":3,"content":"x"}`, "Invalid field title: expected string, got integer"},
		{"enum", `{"title":"Hi","content":"x","status":"archived"}`, `Invalid field status: must be one of ["draft","published"]`},
		{"too long", `{"title":"aaaaaaaaaaaaaaaaaaaaa","content":"x"}`, "Invalid field title: must be at most 20 characters"},
		{"too short", `{"title":"","content":"x"}`, "Invalid field title: must be at least 1 characters"},
		{"below minimum", `{"title":"Hi","content":"x","limit":0}`, "Invalid field limit: must be >= 1"},
		{"not integer", `{"title":"Hi","content":"x","limit":1.5}`, "Invalid field limit: expected integer, got number"},
		{"too many items", `{"title":"Hi","content":"x","tags":["a","b","c"]}`, "Invalid field tags: must have at most 2 items"},
		{"bad item", `{"title":"Hi","content":"x","tags":[1]}`, "Invalid field tags[0]: expected string, got integer"},
		{"unknown key", `{"title":"Hi","content":"x","zzz":1}`, "Invalid field zzz: unknown field"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args, err := ParseArgs(json.RawMessage(tc.args))
			if err != nil {
				t.Fatalf("ParseArgs: %v", err)
			}
			err = Validate(s, args)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if err.Error() != tc.want {
				t.Fatalf("got %q, want %q", err.Error(), tc.want)
			}
		})
	}
}

func TestParseArgs(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		a, err := ParseArgs(json.RawMessage(raw))
		if err != nil || len(a) != 0 {
			t.Fatalf("ParseArgs(%q) = %v, %v", raw, a, err)
		}
	}
	if _, err := ParseArgs(json.RawMessage(`[1,2]`)); err == nil {
		t.Fatalf("expected error for non-object args")
	}
}

func TestObjectBuilder(t *testing.T) {
	max := 10
	s := Object(
		Field{Name: "query", Property: Property{Type: "string", MaxLength: &max}, Required: true},
		Field{Name: "limit", Property: Property{Type: "integer"}},
	)
	if err := Validate(s, Args{"limit": float64(2)}); err == nil || err.Error() != "Missing required field: query" {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(s, Args{"query": "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func noop(context.Context, auth.Principal, Args) Outcome { return OK(nil) }

func TestNewRegistry_ExhaustiveBinding(t *testing.T) {
	defs := []Definition{{Name: "b"}, {Name: "a"}}

	if _, err := NewRegistry(defs, map[Name]Handler{"a": noop}); !errors.Is(err, ErrUnboundTool) {
		t.Fatalf("expected ErrUnboundTool, got %v", err)
	}
	if _, err := NewRegistry(defs, map[Name]Handler{"a": noop, "b": noop, "c": noop}); err == nil {
		t.Fatalf("expected error for handler without definition")
	}
	if _, err := NewRegistry(append(defs, Definition{Name: "a"}), map[Name]Handler{"a": noop, "b": noop}); err == nil {
		t.Fatalf("expected error for duplicate definition")
	}

	r, err := NewRegistry(defs, map[Name]Handler{"a": noop, "b": noop})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if got := r.Definitions(); got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("expected sorted definitions, got %+v", got)
	}
	if _, ok := r.Lookup("a"); !ok {
		t.Fatalf("expected lookup to succeed")
	}
	if _, ok := r.Lookup("zzz"); ok {
		t.Fatalf("expected lookup to fail")
	}
	if len(r.Summaries()) != 2 {
		t.Fatalf("expected 2 summaries")
	}
}
