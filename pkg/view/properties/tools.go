package properties

import (
	"contextcore/pkg/event"
)

// ToolCallPairing requires every Action to be answered by a later result and every
// result to answer an earlier Action. A repeated Action for the same tool-call ID is
// dropped in favor of the first. Every cut is safe.
type ToolCallPairing struct{}

func (ToolCallPairing) Name() string { return "tool_call_pairing" }

func (ToolCallPairing) property() {}

func (ToolCallPairing) Enforce(current, _ []*event.Event) map[string]struct{} {
	drop := make(map[string]struct{})
	actionAt := make(map[string]int)
	answered := make(map[string]bool)

	for i, ev := range current {
		id, ok := ev.ToolCallID()
		if !ok {
			continue
		}
		switch {
		case ev.IsAction():
			if _, seen := actionAt[id]; seen {
				drop[ev.ID] = struct{}{}
				continue
			}
			actionAt[id] = i
		case ev.IsToolResult():
			if _, seen := actionAt[id]; !seen {
				drop[ev.ID] = struct{}{}
				continue
			}
			answered[id] = true
		}
	}

	for id, i := range actionAt {
		if !answered[id] {
			drop[current[i].ID] = struct{}{}
		}
	}
	return drop
}

func (ToolCallPairing) ManipulationIndices(current []*event.Event) ManipulationIndices {
	return All(len(current))
}

// ToolResultUniqueness keeps a single result per tool-call ID. An Observation beats an
// AgentError; among results of the same kind the latest log position wins. Every cut is safe.
type ToolResultUniqueness struct{}

func (ToolResultUniqueness) Name() string { return "tool_result_uniqueness" }

func (ToolResultUniqueness) property() {}

func (ToolResultUniqueness) Enforce(current, _ []*event.Event) map[string]struct{} {
	best := make(map[string]*event.Event)
	drop := make(map[string]struct{})

	for _, ev := range current {
		if !ev.IsToolResult() {
			continue
		}
		id, _ := ev.ToolCallID()
		prev, ok := best[id]
		if !ok {
			best[id] = ev
			continue
		}
		if preferResult(ev, prev) {
			drop[prev.ID] = struct{}{}
			best[id] = ev
		} else {
			drop[ev.ID] = struct{}{}
		}
	}
	return drop
}

func (ToolResultUniqueness) ManipulationIndices(current []*event.Event) ManipulationIndices {
	return All(len(current))
}

func preferResult(candidate, incumbent *event.Event) bool {
	cp, ip := resultPriority(candidate), resultPriority(incumbent)
	if cp != ip {
		return cp > ip
	}
	return candidate.Position > incumbent.Position
}

func resultPriority(ev *event.Event) int {
	switch ev.Payload.(type) {
	case event.Observation:
		return 2
	case event.AgentError:
		return 1
	default:
		return 0
	}
}

// ToolLoopAtomicity forbids cutting between an Action and its result, and between an
// assistant message and the Actions that immediately follow it in the same turn.
type ToolLoopAtomicity struct{}

func (ToolLoopAtomicity) Name() string { return "tool_loop_atomicity" }

func (ToolLoopAtomicity) property() {}

func (ToolLoopAtomicity) Enforce(_, _ []*event.Event) map[string]struct{} {
	return nil
}

func (ToolLoopAtomicity) ManipulationIndices(current []*event.Event) ManipulationIndices {
	blocked := make(map[int]struct{})
	actionAt := make(map[string]int)

	for i, ev := range current {
		id, ok := ev.ToolCallID()
		if !ok {
			continue
		}
		if ev.IsAction() {
			if _, seen := actionAt[id]; !seen {
				actionAt[id] = i
			}
			continue
		}
		if start, seen := actionAt[id]; seen {
			blockSpan(blocked, start, i)
		}
	}

	for i, ev := range current {
		msg, ok := ev.Payload.(event.Message)
		if !ok || msg.Role != event.RoleAssistant {
			continue
		}
		end := i
		for end+1 < len(current) && current[end+1].IsAction() {
			end++
		}
		blockSpan(blocked, i, end)
	}

	return Except(len(current), blocked)
}

// BatchAtomicity forbids cutting inside the span from the first Action of a batch to the
// last result answering any Action of that batch.
type BatchAtomicity struct{}

func (BatchAtomicity) Name() string { return "batch_atomicity" }

func (BatchAtomicity) property() {}

func (BatchAtomicity) Enforce(_, _ []*event.Event) map[string]struct{} {
	return nil
}

func (BatchAtomicity) ManipulationIndices(current []*event.Event) ManipulationIndices {
	first := make(map[string]int)
	last := make(map[string]int)
	batchOf := make(map[string]string)

	for i, ev := range current {
		switch p := ev.Payload.(type) {
		case event.Action:
			batchOf[p.ToolCallID] = p.BatchID
			if _, ok := first[p.BatchID]; !ok {
				first[p.BatchID] = i
			}
			last[p.BatchID] = i
		case event.Observation, event.AgentError:
			id, _ := ev.ToolCallID()
			if batch, ok := batchOf[id]; ok {
				last[batch] = i
			}
		}
	}

	blocked := make(map[int]struct{})
	for batch, start := range first {
		blockSpan(blocked, start, last[batch])
	}
	return Except(len(current), blocked)
}

// blockSpan forbids every cut strictly inside [start, end], that is start+1..end.
func blockSpan(blocked map[int]struct{}, start, end int) {
	for i := start + 1; i <= end; i++ {
		blocked[i] = struct{}{}
	}
}
