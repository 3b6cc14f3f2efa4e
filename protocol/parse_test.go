package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParse_Classify(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  Kind
	}{
		{"ping", `{"type":"ping"}`, KindControl},
		{"capabilities", `{"type":"get_capabilities"}`, KindControl},
		{"typing start", `{"type":"typing_start","target_user_id":"u2"}`, KindControl},
		{"typing stop", `{"type":"typing_stop","target_user_id":"u2"}`, KindControl},
		{"presence", `{"type":"presence_update","status":"away"}`, KindControl},
		{"tool call", `{"type":"tool_call","tool":"follow_user","args":{"username":"bob"},"request_id":"r1"}`, KindToolCall},
		{"unknown", `{"type":"subscribe","request_id":7}`, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Parse([]byte(tc.frame))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := Classify(env); got != tc.want {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParse_ToolCallFields(t *testing.T) {
	env, err := Parse([]byte(`{"type":"tool_call","tool":"follow_user","args":{"username":"bob"},"request_id":"r1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.Tool != "follow_user" {
		t.Fatalf("tool: %q", env.Tool)
	}
	if env.RequestID.String() != "r1" {
		t.Fatalf("request id: %q", env.RequestID.String())
	}
	var args map[string]any
	if err := json.Unmarshal(env.Args, &args); err != nil {
		t.Fatalf("args: %v", err)
	}
	if args["username"] != "bob" {
		t.Fatalf("args: %v", args)
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{"type":`))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if pe.RequestID != nil {
		t.Fatalf("expected no request id, got %v", pe.RequestID)
	}
}

func TestParse_SalvagesRequestID(t *testing.T) {
	_, err := Parse([]byte(`{"type":42,"request_id":"r9"}`))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if pe.RequestID.String() != "r9" {
		t.Fatalf("want r9, got %q", pe.RequestID.String())
	}

	_, err = Parse([]byte(`{"request_id":5}`))
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if pe.Reason != "missing type" || pe.RequestID.String() != "5" {
		t.Fatalf("unexpected parse error: %+v", pe)
	}
}

func TestToolResponse_EchoesRequestIDType(t *testing.T) {
	env, err := Parse([]byte(`{"type":"tool_call","tool":"x","request_id":12}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	b, err := Marshal(NewToolFailure(env.RequestID, "Unknown tool: x"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"tool_response","request_id":12,"success":false,"error":"Unknown tool: x"}`
	if string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}
}

func TestToolResponse_OmitsAbsentRequestID(t *testing.T) {
	b, err := Marshal(NewToolSuccess(nil, map[string]any{"ok": true}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"tool_response","success":true,"data":{"ok":true}}`
	if string(b) != want {
		t.Fatalf("want %s, got %s", want, b)
	}
}

func TestEvent_HasNoRequestID(t *testing.T) {
	b, err := Marshal(NewEvent("user_followed", map[string]string{"follower_id": "u1"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["request_id"]; ok {
		t.Fatalf("event must not carry request_id: %s", b)
	}
}

func TestPong_Timestamp(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	p := NewPong(now)
	if p.Type != TypePong || p.Timestamp != 1700000000123 {
		t.Fatalf("unexpected pong %+v", p)
	}
}

func TestToolResponse_EchoesLargeNumericIDsVerbatim(t *testing.T) {
	cases := []struct {
		name string
		id   string
	}{
		{"beyond float precision", `9007199254740993`},
		{"beyond int64", `12345678901234567890`},
		{"negative", `-42`},
		{"fraction", `1.50`},
		{"exponent", `1e400`},
		{"escaped string", `"aéb"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := Parse([]byte(`{"type":"tool_call","tool":"x","request_id":` + tc.id + `}`))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			b, err := Marshal(NewToolFailure(env.RequestID, "Unknown tool: x"))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			want := `{"type":"tool_response","request_id":` + tc.id + `,"success":false,"error":"Unknown tool: x"}`
			if string(b) != want {
				t.Fatalf("want %s, got %s", want, b)
			}
		})
	}
}

func TestRequestID_RejectsNonScalar(t *testing.T) {
	for _, frame := range []string{
		`{"type":"ping","request_id":true}`,
		`{"type":"ping","request_id":{"a":1}}`,
		`{"type":"ping","request_id":[1]}`,
	} {
		if _, err := Parse([]byte(frame)); err == nil {
			t.Fatalf("expected error for %s", frame)
		}
	}
}

func TestNewRequestID(t *testing.T) {
	if id := NewRequestID(int64(7)); !id.IsNumber() || id.String() != "7" {
		t.Fatalf("int id: %#v", id.Value())
	}
	if id := NewRequestID("r1"); id.IsNumber() || id.String() != "r1" {
		t.Fatalf("string id: %#v", id.Value())
	}
	if id := NewRequestID(json.Number("18446744073709551616")); id.Value() != json.Number("18446744073709551616") {
		t.Fatalf("json.Number id: %#v", id.Value())
	}
	if !NewRequestID(true).IsNil() || !NewRequestID(json.Number("abc")).IsNil() {
		t.Fatalf("unsupported values must yield an empty id")
	}
}

func TestParse_WrongFieldTypeKeepsToolCallIdentity(t *testing.T) {
	_, err := Parse([]byte(`{"type":"tool_call","tool":5,"request_id":"r9"}`))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if !pe.ToolCall() || pe.RequestID.String() != "r9" {
		t.Fatalf("unexpected parse error: %+v", pe)
	}

	_, err = Parse([]byte(`{"type":42,"tool":"x","request_id":"r9"}`))
	if !errors.As(err, &pe) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if pe.ToolCall() {
		t.Fatalf("non-string type must not be treated as a tool call")
	}
}
