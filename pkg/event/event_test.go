package event

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConstructorsRejectMalformedPayloads(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Event, error)
		field string
	}{
		{"empty system prompt", func() (*Event, error) { return NewSystemPrompt("  ") }, "content"},
		{"unknown role", func() (*Event, error) { return NewMessage("tool", "hi") }, "role"},
		{"action without tool name", func() (*Event, error) { return NewAction(Action{ToolCallID: "t1"}) }, "tool_name"},
		{"action without call id", func() (*Event, error) { return NewAction(Action{ToolName: "read"}) }, "tool_call_id"},
		{"observation without call id", func() (*Event, error) { return NewObservation("read", "", "ok") }, "tool_call_id"},
		{"agent error without message", func() (*Event, error) { return NewAgentError("read", "t1", "") }, "error"},
		{"negative summary offset", func() (*Event, error) {
			return NewCondensation(Condensation{Summary: "s", SummaryOffset: IntPtr(-1)})
		}, "summary_offset"},
		{"summary without offset", func() (*Event, error) { return NewCondensation(Condensation{Summary: "s"}) }, "summary_offset"},
		{"offset without summary", func() (*Event, error) {
			return NewCondensation(Condensation{SummaryOffset: IntPtr(1)})
		}, "summary"},
		{"blank forgotten id", func() (*Event, error) {
			return NewCondensation(Condensation{ForgottenEventIDs: []string{"a", ""}})
		}, "forgotten_event_ids[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := tt.build()
			if ev != nil {
				t.Fatalf("expected no event, got %v", ev)
			}
			if !errors.Is(err, ErrMalformedEvent) {
				t.Fatalf("expected ErrMalformedEvent, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestNewActionDefaultsBatchID(t *testing.T) {
	ev := Must(NewAction(Action{ToolName: "read", ToolCallID: "t1"}))
	a, ok := ev.Payload.(Action)
	if !ok {
		t.Fatalf("expected Action payload, got %T", ev.Payload)
	}
	if a.BatchID != "t1" {
		t.Errorf("expected batch id t1, got %q", a.BatchID)
	}
	if ev.Source != SourceAgent {
		t.Errorf("expected agent source, got %s", ev.Source)
	}
	if ev.ID == "" {
		t.Error("expected generated id")
	}
}

func TestNewActionCopiesArguments(t *testing.T) {
	args := map[string]any{"path": "a.go"}
	ev := Must(NewAction(Action{ToolName: "read", ToolCallID: "t1", Arguments: args}))
	args["path"] = "b.go"

	if got := ev.Payload.(Action).Arguments["path"]; got != "a.go" {
		t.Errorf("expected arguments to be copied, got %v", got)
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := Must(NewMessage(RoleAssistant, "hello", WithID("m1"), WithTimestamp(ts), WithSource(SourceUser)))

	if ev.ID != "m1" || !ev.Timestamp.Equal(ts) || ev.Source != SourceUser {
		t.Errorf("options not applied: %+v", ev)
	}
}

func TestToolCallIDAndClassification(t *testing.T) {
	action := Must(NewAction(Action{ToolName: "read", ToolCallID: "t1"}))
	obs := Must(NewObservation("read", "t1", "ok"))
	failed := Must(NewAgentError("read", "t1", "boom"))
	msg := Must(NewMessage(RoleUser, "hi"))
	req := Must(NewCondensationRequest("too long"))

	if id, ok := action.ToolCallID(); !ok || id != "t1" {
		t.Errorf("action tool call id = %q, %v", id, ok)
	}
	if !obs.IsToolResult() || !failed.IsToolResult() || action.IsToolResult() {
		t.Error("tool result classification is wrong")
	}
	if _, ok := msg.ToolCallID(); ok {
		t.Error("message should not carry a tool call id")
	}
	if req.IsLLMConvertible() {
		t.Error("condensation request must not be LLM convertible")
	}
	if !msg.IsLLMConvertible() {
		t.Error("message must be LLM convertible")
	}
}

func TestSummaryForIsDeterministic(t *testing.T) {
	cond := Must(NewCondensation(Condensation{
		ForgottenEventIDs: []string{"a"},
		Summary:           "earlier work",
		SummaryOffset:     IntPtr(1),
	}, WithID("c1")))
	cond.Position = 7

	first, ok := SummaryFor(cond)
	if !ok {
		t.Fatal("expected summary event")
	}
	second, _ := SummaryFor(cond)

	if first.ID != "c1:summary" || first.ID != second.ID {
		t.Errorf("unexpected summary ids %q %q", first.ID, second.ID)
	}
	if first.Position != 7 {
		t.Errorf("expected inherited position 7, got %d", first.Position)
	}

	plain := Must(NewCondensation(Condensation{ForgottenEventIDs: []string{"a"}}))
	if _, ok := SummaryFor(plain); ok {
		t.Error("condensation without summary should not produce a summary event")
	}
}

func TestWithPayloadKeepsIdentity(t *testing.T) {
	obs := Must(NewObservation("read", "t1", "long output", WithID("o1")))
	masked, err := obs.WithPayload(Observation{ToolName: "read", ToolCallID: "t1", Content: "<masked>"})
	if err != nil {
		t.Fatalf("WithPayload: %v", err)
	}
	if masked.ID != "o1" || obs.Payload.(Observation).Content != "long output" {
		t.Error("WithPayload must keep the id and leave the original untouched")
	}
	if _, err := obs.WithPayload(Message{Role: RoleUser}); !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("expected kind mismatch error, got %v", err)
	}
}

func TestJSONRoundTripPreservesPayloadKind(t *testing.T) {
	events := []*Event{
		Must(NewSystemPrompt("be helpful")),
		Must(NewAction(Action{ToolName: "read", ToolCallID: "t1", Arguments: map[string]any{"path": "a.go"}, BatchID: "b1"})),
		Must(NewCondensation(Condensation{ForgottenEventIDs: []string{"x"}, Summary: "s", SummaryOffset: IntPtr(2), LLMResponseID: "resp_1"})),
	}

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal %s: %v", ev.Kind(), err)
		}
		var decoded Event
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal %s: %v", ev.Kind(), err)
		}
		if decoded.Kind() != ev.Kind() || decoded.ID != ev.ID {
			t.Errorf("round trip changed event: %v -> %v", ev, &decoded)
		}
	}

	var decoded Event
	err := json.Unmarshal([]byte(`{"id":"x","kind":"telepathy","payload":{}}`), &decoded)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Errorf("expected unknown kind to be rejected, got %v", err)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field string
	}{
		{"blank system prompt", `{"id":"s","kind":"system_prompt","payload":{"content":" "}}`, "content"},
		{"unknown role", `{"id":"m","kind":"message","payload":{"role":"tool","content":"hi"}}`, "role"},
		{"action without tool name", `{"id":"a","kind":"action","payload":{"tool_call_id":"t1"}}`, "tool_name"},
		{"action without call id", `{"id":"a","kind":"action","payload":{"tool_name":"read","tool_call_id":""}}`, "tool_call_id"},
		{"observation without call id", `{"id":"o","kind":"observation","payload":{"tool_name":"read","content":"ok"}}`, "tool_call_id"},
		{"agent error without message", `{"id":"e","kind":"agent_error","payload":{"tool_name":"read","tool_call_id":"t1"}}`, "error"},
		{"negative summary offset", `{"id":"c","kind":"condensation","payload":{"forgotten_event_ids":[],"summary":"x","summary_offset":-1}}`, "summary_offset"},
		{"summary without offset", `{"id":"c","kind":"condensation","payload":{"forgotten_event_ids":[],"summary":"x"}}`, "summary_offset"},
		{"offset without summary", `{"id":"c","kind":"condensation","payload":{"forgotten_event_ids":[],"summary_offset":1}}`, "summary"},
		{"blank forgotten id", `{"id":"c","kind":"condensation","payload":{"forgotten_event_ids":["a",""]}}`, "forgotten_event_ids[1]"},
		{"blank summary event", `{"id":"c:summary","kind":"condensation_summary","payload":{"summary":""}}`, "summary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decoded Event
			err := json.Unmarshal([]byte(tt.line), &decoded)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("expected ErrMalformedEvent, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestDecodeDefaultsBatchID(t *testing.T) {
	var decoded Event
	if err := json.Unmarshal([]byte(`{"id":"a","kind":"action","payload":{"tool_name":"read","tool_call_id":"t1"}}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := decoded.Payload.(Action).BatchID; got != "t1" {
		t.Errorf("expected batch id to default to the tool-call id, got %q", got)
	}
}

func TestTextRendersToolCallsAsProse(t *testing.T) {
	ev := Must(NewAction(Action{ToolName: "read", ToolCallID: "t1", Thought: "need the file", Arguments: map[string]any{"path": "a.go"}}))
	text := ev.Text()
	if !strings.Contains(text, "ACTION read [t1]") || !strings.Contains(text, "THOUGHT: need the file") {
		t.Errorf("unexpected rendering: %q", text)
	}
}
