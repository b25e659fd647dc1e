package contextmgr

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"contextcore/internal/mocks"
	"contextcore/pkg/condenser"
)

func TestContextManagerSerializeDeserialize(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith("ten messages about the build")
	c, err := condenser.NewLLMSummarizing(condenser.Window{MaxSize: 6, KeepFirst: 1}, client)
	if err != nil {
		t.Fatalf("NewLLMSummarizing failed: %v", err)
	}

	cm := newManager(t, WithCondenser(c))
	chatter(t, cm, 10)
	appendAll(t, cm, observation("o1", "t9"))
	if _, err := cm.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	data, err := cm.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	var sc SerializedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		t.Fatalf("Snapshot is not valid JSON: %v", err)
	}
	if sc.ConversationID != "conv-1" || len(sc.Events) != cm.Log().Len() {
		t.Errorf("Unexpected snapshot header %+v", sc)
	}
	if !strings.HasPrefix(sc.Condenser, "llm_summarizing") {
		t.Errorf("Expected condenser description, got %q", sc.Condenser)
	}

	restored, err := NewContextManager("other")
	if err != nil {
		t.Fatalf("NewContextManager failed: %v", err)
	}
	if err := restored.Deserialize(data); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}

	if restored.ConversationID() != "conv-1" {
		t.Errorf("conversation id mismatch: got %q", restored.ConversationID())
	}
	if restored.Log().Len() != cm.Log().Len() {
		t.Errorf("log length mismatch: got %d, want %d", restored.Log().Len(), cm.Log().Len())
	}
	if !restored.View().Equal(cm.View()) {
		t.Errorf("view mismatch: got %v, want %v", idsOf(restored.View()), idsOf(cm.View()))
	}
	if len(restored.Violations()) != len(cm.Violations()) {
		t.Errorf("violations mismatch: got %v, want %v", restored.Violations(), cm.Violations())
	}
}

func TestDeserializeReplacesState(t *testing.T) {
	src := newManager(t)
	appendAll(t, src, sys("s"), user("u1"))
	data, err := src.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	dst := newManager(t)
	appendAll(t, dst, sys("other"), user("x"), user("y"))
	if err := dst.Deserialize(data); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if got := strings.Join(idsOf(dst.View()), ","); got != "s,u1" {
		t.Errorf("Expected restored view s,u1, got %s", got)
	}

	// The restored log accepts new events after the snapshot.
	stored, err := dst.Append(user("u2"))
	if err != nil {
		t.Fatalf("Append after restore failed: %v", err)
	}
	if stored.Position != 2 {
		t.Errorf("Expected position 2, got %d", stored.Position)
	}
}

func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"unknown version", `{"version": 99, "events": []}`},
		{"bad event", `{"version": 1, "events": [{"id": "x", "kind": "nope", "payload": {}}]}`},
		{"negative summary offset", `{"version": 1, "events": [` +
			`{"id": "c1", "kind": "condensation", "payload": {"forgotten_event_ids": [], "summary": "x", "summary_offset": -1}}]}`},
		{"action without call id", `{"version": 1, "events": [` +
			`{"id": "a1", "kind": "action", "payload": {"tool_name": "run", "tool_call_id": ""}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := newManager(t)
			appendAll(t, cm, user("u1"))
			if err := cm.Deserialize([]byte(tt.data)); err == nil {
				t.Error("Expected error")
			}
			if cm.View().Len() != 1 {
				t.Errorf("Failed restore must keep the previous state, got %v", idsOf(cm.View()))
			}
		})
	}
}
