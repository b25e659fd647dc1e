package compliance

import (
	"sort"
)

// State is the streaming bookkeeping of tool calls seen so far.
type State struct {
	// Pending maps tool-call IDs to the action event awaiting a result.
	Pending map[string]string
	// Completed holds tool-call IDs whose action received a result.
	Completed map[string]struct{}
	// Orphans maps tool-call IDs to a result event that arrived before any action.
	Orphans map[string]string
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		Pending:   make(map[string]string),
		Completed: make(map[string]struct{}),
		Orphans:   make(map[string]string),
	}
}

// PendingIDs returns the pending tool-call IDs in sorted order.
func (s *State) PendingIDs() []string {
	ids := make([]string, 0, len(s.Pending))
	for id := range s.Pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsCompleted reports whether callID already received its result.
func (s *State) IsCompleted(callID string) bool {
	_, ok := s.Completed[callID]
	return ok
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := NewState()
	for k, v := range s.Pending {
		c.Pending[k] = v
	}
	for k := range s.Completed {
		c.Completed[k] = struct{}{}
	}
	for k, v := range s.Orphans {
		c.Orphans[k] = v
	}
	return c
}
