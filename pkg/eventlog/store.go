package eventlog

import (
	"errors"
	"fmt"
	"sync"

	"contextcore/pkg/event"
)

var (
	// ErrNotFound is returned when an index or ID does not name a stored event.
	ErrNotFound = errors.New("event not found")
	// ErrDuplicateID is returned when an event ID is appended twice.
	ErrDuplicateID = errors.New("duplicate event id")
)

// Store is the backing sequence of a Log. Implementations only ever append.
type Store interface {
	// Append stores ev at index Len(). The event's Position is already assigned.
	Append(ev *event.Event) error
	// Len returns the number of stored events.
	Len() int
	// Get returns the event at index i.
	Get(i int) (*event.Event, error)
	// Slice returns the events in [from, to).
	Slice(from, to int) ([]*event.Event, error)
	// Lookup returns the event with the given ID.
	Lookup(id string) (*event.Event, error)
}

// MemoryStore keeps every event in memory. It is the default backend.
type MemoryStore struct {
	events []*event.Event
	byID   map[string]int
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// Append implements Store.
func (s *MemoryStore) Append(ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[ev.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
	}
	s.byID[ev.ID] = len(s.events)
	s.events = append(s.events, ev)
	return nil
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Get implements Store.
func (s *MemoryStore) Get(i int) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.events) {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrNotFound, i, len(s.events))
	}
	return s.events[i], nil
}

// Slice implements Store.
func (s *MemoryStore) Slice(from, to int) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, to = clampRange(from, to, len(s.events))
	out := make([]*event.Event, to-from)
	copy(out, s.events[from:to])
	return out, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(id string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return s.events[i], nil
}

func clampRange(from, to, n int) (int, int) {
	if from < 0 {
		from = 0
	}
	if to > n {
		to = n
	}
	if from > to {
		from = to
	}
	return from, to
}
