package event

import (
	"encoding/json"
	"fmt"
	"time"
)

type wireEvent struct {
	ID        string          `json:"id"`
	Position  int64           `json:"position"`
	Source    Source          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the event with its payload kind as discriminator.
func (e *Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("%w: event %s has no payload", ErrMalformedEvent, e.ID)
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", e.Payload.Kind(), err)
	}
	return json.Marshal(wireEvent{
		ID:        e.ID,
		Position:  e.Position,
		Source:    e.Source,
		Timestamp: e.Timestamp,
		Kind:      e.Payload.Kind(),
		Payload:   payload,
	})
}

// UnmarshalJSON decodes an event written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if w.ID == "" {
		return invalid(w.Kind, "id", "must not be empty")
	}
	payload, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return err
	}
	*e = Event{
		ID:        w.ID,
		Position:  w.Position,
		Source:    w.Source,
		Timestamp: w.Timestamp,
		Payload:   payload,
	}
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	switch kind {
	case KindSystemPrompt:
		return decodeAs[SystemPrompt](kind, raw)
	case KindMessage:
		return decodeAs[Message](kind, raw)
	case KindAction:
		return decodeAs[Action](kind, raw)
	case KindObservation:
		return decodeAs[Observation](kind, raw)
	case KindAgentError:
		return decodeAs[AgentError](kind, raw)
	case KindCondensation:
		return decodeAs[Condensation](kind, raw)
	case KindCondensationRequest:
		return decodeAs[CondensationRequest](kind, raw)
	case KindCondensationSummary:
		return decodeAs[CondensationSummary](kind, raw)
	default:
		return nil, invalid(kind, "kind", "is not a known payload kind")
	}
}

func decodeAs[P Payload](kind Kind, raw json.RawMessage) (Payload, error) {
	var p P
	if len(raw) == 0 {
		return nil, invalid(kind, "payload", "is missing")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", kind, err)
	}
	return normalize(p)
}
