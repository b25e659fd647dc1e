// Package event defines the immutable records that make up a conversation log.
//
// An Event carries a unique ID, the log position assigned on append, a source
// tag, a creation timestamp and exactly one payload from a closed set of
// variants. Payloads are never mutated after an event has been appended; code
// that needs a modified event (for example a masked observation) builds a new
// Event value with the same ID.
package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies who produced an event.
type Source string

const (
	// SourceAgent marks events produced by the agent (model output, tool calls).
	SourceAgent Source = "agent"
	// SourceUser marks events produced by the human user.
	SourceUser Source = "user"
	// SourceEnvironment marks events produced by tool executors and the runtime.
	SourceEnvironment Source = "environment"
)

// Event is a single immutable record in the conversation log.
//
//nolint:govet // fieldalignment: prefer logical grouping over memory optimization
type Event struct {
	ID        string
	Position  int64
	Source    Source
	Timestamp time.Time
	Payload   Payload
}

// Option customizes an event at construction time.
type Option func(*Event)

// WithID overrides the generated event ID. Intended for replay and tests.
func WithID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithSource overrides the default source of the payload variant.
func WithSource(source Source) Option {
	return func(e *Event) {
		e.Source = source
	}
}

// WithTimestamp overrides the creation timestamp.
func WithTimestamp(ts time.Time) Option {
	return func(e *Event) {
		e.Timestamp = ts
	}
}

// NewID returns a fresh event identifier.
func NewID() string {
	return uuid.NewString()
}

func build(payload Payload, source Source, opts []Option) *Event {
	e := &Event{
		ID:        NewID(),
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kind returns the payload kind, or an empty kind for an event without payload.
func (e *Event) Kind() Kind {
	if e == nil || e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// ToolCallID returns the tool-call correlation key for actions and tool results.
func (e *Event) ToolCallID() (string, bool) {
	switch p := e.Payload.(type) {
	case Action:
		return p.ToolCallID, true
	case Observation:
		return p.ToolCallID, true
	case AgentError:
		return p.ToolCallID, true
	default:
		return "", false
	}
}

// IsAction reports whether the event is a tool invocation.
func (e *Event) IsAction() bool {
	_, ok := e.Payload.(Action)
	return ok
}

// IsToolResult reports whether the event answers a tool invocation.
func (e *Event) IsToolResult() bool {
	switch e.Payload.(type) {
	case Observation, AgentError:
		return true
	default:
		return false
	}
}

// IsLLMConvertible reports whether the event can be rendered as a model-wire message.
func (e *Event) IsLLMConvertible() bool {
	switch e.Payload.(type) {
	case SystemPrompt, Message, Action, Observation, AgentError, CondensationSummary:
		return true
	case Condensation, CondensationRequest:
		return false
	default:
		return false
	}
}

// WithPayload returns a copy of the event carrying a different payload of the same kind.
// The receiver is not modified.
func (e *Event) WithPayload(p Payload) (*Event, error) {
	if p == nil || p.Kind() != e.Kind() {
		return nil, fmt.Errorf("%w: payload kind %q does not match event kind %q", ErrMalformedEvent, kindOf(p), e.Kind())
	}
	clone := *e
	clone.Payload = p
	return &clone, nil
}

func kindOf(p Payload) Kind {
	if p == nil {
		return ""
	}
	return p.Kind()
}

// Text renders the event as a single plain-text line block, used for summarization prompts
// and diagnostics. Tool calls are rendered as prose, never as tool-call blocks.
func (e *Event) Text() string {
	switch p := e.Payload.(type) {
	case SystemPrompt:
		return "SYSTEM: " + p.Content
	case Message:
		return strings.ToUpper(string(p.Role)) + ": " + p.Content
	case Action:
		args := renderArguments(p.Arguments)
		text := fmt.Sprintf("ACTION %s [%s]: %s", p.ToolName, p.ToolCallID, args)
		if p.Thought != "" {
			text = "THOUGHT: " + p.Thought + "\n" + text
		}
		return text
	case Observation:
		return fmt.Sprintf("OBSERVATION %s [%s]: %s", p.ToolName, p.ToolCallID, p.Content)
	case AgentError:
		return fmt.Sprintf("ERROR %s [%s]: %s", p.ToolName, p.ToolCallID, p.Error)
	case CondensationSummary:
		return "SUMMARY: " + p.Summary
	case Condensation:
		return fmt.Sprintf("CONDENSATION: forgot %d events", len(p.ForgottenEventIDs))
	case CondensationRequest:
		return "CONDENSATION REQUEST: " + p.Reason
	default:
		return ""
	}
}

func renderArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, ", ") + "}"
	}
	return string(data)
}

// String implements fmt.Stringer.
func (e *Event) String() string {
	if e == nil {
		return "<nil event>"
	}
	return fmt.Sprintf("#%d %s %s", e.Position, e.Kind(), e.ID)
}

// Must panics if err is non-nil. It is meant for fixtures built from literals.
func Must(e *Event, err error) *Event {
	if err != nil {
		panic(err)
	}
	return e
}
