package compliance

import (
	"fmt"

	"contextcore/pkg/event"
)

// Property names reported by the default checks.
const (
	PropertyToolResultBeforeAction = "tool_result_before_action"
	PropertyUnmatchedToolResult    = "unmatched_tool_result"
	PropertyDuplicateToolResult    = "duplicate_tool_result"
	PropertyInterleavedMessage     = "interleaved_message"
)

// Check inspects one event against the state before that event is applied.
type Check interface {
	Property() string
	Evaluate(s *State, ev *event.Event) (Violation, bool)
}

// CheckFunc adapts a function to Check.
type CheckFunc struct {
	Name string
	Fn   func(s *State, ev *event.Event) (Violation, bool)
}

// Property implements Check.
func (c CheckFunc) Property() string { return c.Name }

// Evaluate implements Check.
func (c CheckFunc) Evaluate(s *State, ev *event.Event) (Violation, bool) { return c.Fn(s, ev) }

// DefaultChecks returns the standard battery in evaluation order.
func DefaultChecks() []Check {
	return []Check{
		ResultBeforeAction{},
		UnmatchedResult{},
		DuplicateResult{},
		InterleavedMessage{},
	}
}

// ResultBeforeAction flags a result that preceded its action. It can only be told apart
// from an unmatched result once the action shows up, so it fires on the action and names
// the result as the offending event.
type ResultBeforeAction struct{}

func (ResultBeforeAction) Property() string { return PropertyToolResultBeforeAction }

func (ResultBeforeAction) Evaluate(s *State, ev *event.Event) (Violation, bool) {
	a, ok := ev.Payload.(event.Action)
	if !ok {
		return Violation{}, false
	}
	resultID, seen := s.Orphans[a.ToolCallID]
	if !seen {
		return Violation{}, false
	}
	return Violation{
		Property:    PropertyToolResultBeforeAction,
		EventID:     resultID,
		Description: fmt.Sprintf("result for tool call %s arrived before its action %s", a.ToolCallID, ev.ID),
		Context:     map[string]any{"tool_call_id": a.ToolCallID, "action_event_id": ev.ID},
	}, true
}

// UnmatchedResult flags a result for a tool call that was never seen.
type UnmatchedResult struct{}

func (UnmatchedResult) Property() string { return PropertyUnmatchedToolResult }

func (UnmatchedResult) Evaluate(s *State, ev *event.Event) (Violation, bool) {
	if !ev.IsToolResult() {
		return Violation{}, false
	}
	callID, _ := ev.ToolCallID()
	if _, pending := s.Pending[callID]; pending || s.IsCompleted(callID) {
		return Violation{}, false
	}
	return Violation{
		Property:    PropertyUnmatchedToolResult,
		EventID:     ev.ID,
		Description: fmt.Sprintf("%s for tool call %s has no preceding action", ev.Kind(), callID),
		Context:     map[string]any{"tool_call_id": callID},
	}, true
}

// DuplicateResult flags a second result for a completed tool call.
type DuplicateResult struct{}

func (DuplicateResult) Property() string { return PropertyDuplicateToolResult }

func (DuplicateResult) Evaluate(s *State, ev *event.Event) (Violation, bool) {
	if !ev.IsToolResult() {
		return Violation{}, false
	}
	callID, _ := ev.ToolCallID()
	if !s.IsCompleted(callID) {
		return Violation{}, false
	}
	return Violation{
		Property:    PropertyDuplicateToolResult,
		EventID:     ev.ID,
		Description: fmt.Sprintf("tool call %s already has a result", callID),
		Context:     map[string]any{"tool_call_id": callID},
	}, true
}

// InterleavedMessage flags a message that arrives while tool calls await results.
type InterleavedMessage struct{}

func (InterleavedMessage) Property() string { return PropertyInterleavedMessage }

func (InterleavedMessage) Evaluate(s *State, ev *event.Event) (Violation, bool) {
	msg, ok := ev.Payload.(event.Message)
	if !ok || len(s.Pending) == 0 {
		return Violation{}, false
	}
	pending := s.PendingIDs()
	return Violation{
		Property:    PropertyInterleavedMessage,
		EventID:     ev.ID,
		Description: fmt.Sprintf("%s message interleaved while %d tool calls are pending", msg.Role, len(pending)),
		Context:     map[string]any{"pending_tool_call_ids": pending},
	}, true
}

// apply advances s past ev.
func apply(s *State, ev *event.Event) {
	callID, ok := ev.ToolCallID()
	if !ok {
		return
	}
	switch {
	case ev.IsAction():
		if _, orphan := s.Orphans[callID]; orphan {
			// The pair is complete, just out of order.
			delete(s.Orphans, callID)
			s.Completed[callID] = struct{}{}
			return
		}
		s.Pending[callID] = ev.ID
	case ev.IsToolResult():
		if _, pending := s.Pending[callID]; pending {
			delete(s.Pending, callID)
			s.Completed[callID] = struct{}{}
			return
		}
		if !s.IsCompleted(callID) {
			if _, seen := s.Orphans[callID]; !seen {
				s.Orphans[callID] = ev.ID
			}
		}
	}
}
