package event

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned by the constructors when a payload fails validation.
var ErrMalformedEvent = errors.New("malformed event")

// ValidationError describes which payload field failed validation.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s.%s %s", ErrMalformedEvent, e.Kind, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrMalformedEvent) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrMalformedEvent
}

func invalid(kind Kind, field, reason string) error {
	return &ValidationError{Kind: kind, Field: field, Reason: reason}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// normalize validates a payload and fills its defaults. The constructors and the JSON
// decoder both go through it, so a decoded event obeys the same rules as a built one.
func normalize(p Payload) (Payload, error) {
	switch p := p.(type) {
	case SystemPrompt:
		if blank(p.Content) {
			return nil, invalid(KindSystemPrompt, "content", "must not be empty")
		}
		return p, nil
	case Message:
		if p.Role != RoleUser && p.Role != RoleAssistant {
			return nil, invalid(KindMessage, "role", fmt.Sprintf("must be %q or %q, got %q", RoleUser, RoleAssistant, p.Role))
		}
		return p, nil
	case Action:
		if blank(p.ToolName) {
			return nil, invalid(KindAction, "tool_name", "must not be empty")
		}
		if blank(p.ToolCallID) {
			return nil, invalid(KindAction, "tool_call_id", "must not be empty")
		}
		if p.BatchID == "" {
			p.BatchID = p.ToolCallID
		}
		if p.Arguments != nil {
			args := make(map[string]any, len(p.Arguments))
			for k, v := range p.Arguments {
				args[k] = v
			}
			p.Arguments = args
		}
		return p, nil
	case Observation:
		if blank(p.ToolCallID) {
			return nil, invalid(KindObservation, "tool_call_id", "must not be empty")
		}
		return p, nil
	case AgentError:
		if blank(p.ToolCallID) {
			return nil, invalid(KindAgentError, "tool_call_id", "must not be empty")
		}
		if blank(p.Error) {
			return nil, invalid(KindAgentError, "error", "must not be empty")
		}
		return p, nil
	case Condensation:
		return normalizeCondensation(p)
	case CondensationRequest:
		return p, nil
	case CondensationSummary:
		if blank(p.Summary) {
			return nil, invalid(KindCondensationSummary, "summary", "must not be empty")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown payload %T", ErrMalformedEvent, p)
	}
}

func normalizeCondensation(c Condensation) (Payload, error) {
	for i, id := range c.ForgottenEventIDs {
		if blank(id) {
			return nil, invalid(KindCondensation, fmt.Sprintf("forgotten_event_ids[%d]", i), "must not be empty")
		}
	}
	if c.SummaryOffset != nil && *c.SummaryOffset < 0 {
		return nil, invalid(KindCondensation, "summary_offset", fmt.Sprintf("must be non-negative, got %d", *c.SummaryOffset))
	}
	if c.Summary != "" && c.SummaryOffset == nil {
		return nil, invalid(KindCondensation, "summary_offset", "is required when summary is set")
	}
	if c.Summary == "" && c.SummaryOffset != nil {
		return nil, invalid(KindCondensation, "summary", "is required when summary_offset is set")
	}
	c.ForgottenEventIDs = append([]string(nil), c.ForgottenEventIDs...)
	if c.SummaryOffset != nil {
		offset := *c.SummaryOffset
		c.SummaryOffset = &offset
	}
	return c, nil
}

func construct(p Payload, source Source, opts []Option) (*Event, error) {
	p, err := normalize(p)
	if err != nil {
		return nil, err
	}
	return build(p, source, opts), nil
}

// NewSystemPrompt creates a system prompt event.
func NewSystemPrompt(content string, opts ...Option) (*Event, error) {
	return construct(SystemPrompt{Content: content}, SourceEnvironment, opts)
}

// NewMessage creates a user or assistant message. The source follows the role unless overridden.
func NewMessage(role Role, content string, opts ...Option) (*Event, error) {
	source := SourceUser
	if role == RoleAssistant {
		source = SourceAgent
	}
	return construct(Message{Role: role, Content: content}, source, opts)
}

// NewAction creates a tool invocation. BatchID defaults to the tool-call ID.
func NewAction(a Action, opts ...Option) (*Event, error) {
	return construct(a, SourceAgent, opts)
}

// NewObservation creates a successful tool result.
func NewObservation(toolName, toolCallID, content string, opts ...Option) (*Event, error) {
	return construct(Observation{ToolName: toolName, ToolCallID: toolCallID, Content: content}, SourceEnvironment, opts)
}

// NewAgentError creates a failed tool result.
func NewAgentError(toolName, toolCallID, message string, opts ...Option) (*Event, error) {
	return construct(AgentError{ToolName: toolName, ToolCallID: toolCallID, Error: message}, SourceEnvironment, opts)
}

// NewCondensation creates a condensation event. Summary and SummaryOffset must be set together.
func NewCondensation(c Condensation, opts ...Option) (*Event, error) {
	return construct(c, SourceEnvironment, opts)
}

// NewCondensationRequest creates a request for condensation at the next opportunity.
func NewCondensationRequest(reason string, opts ...Option) (*Event, error) {
	return build(CondensationRequest{Reason: reason}, SourceUser, opts), nil
}

// SummaryID is the deterministic ID of the summary event a condensation inserts into a view.
func SummaryID(condensationID string) string {
	return condensationID + ":summary"
}

// SummaryFor builds the synthetic summary event for a condensation event.
// It inherits the condensation's position and timestamp so rebuilding a view yields equal events.
func SummaryFor(condensation *Event) (*Event, bool) {
	c, ok := condensation.Payload.(Condensation)
	if !ok || !c.HasSummary() {
		return nil, false
	}
	return &Event{
		ID:        SummaryID(condensation.ID),
		Position:  condensation.Position,
		Source:    SourceEnvironment,
		Timestamp: condensation.Timestamp,
		Payload:   CondensationSummary{Summary: c.Summary},
	}, true
}

// IntPtr returns a pointer to v, for building Condensation literals.
func IntPtr(v int) *int {
	return &v
}
