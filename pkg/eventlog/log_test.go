package eventlog

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"contextcore/pkg/event"
)

func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			t.Helper()
			db, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
			if err != nil {
				t.Fatalf("Failed to open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = db.Close() })
			store, err := NewSQLiteStore(db, "conv-1")
			if err != nil {
				t.Fatalf("Failed to create sqlite store: %v", err)
			}
			return store
		},
	}
}

func message(t *testing.T, content string) *event.Event {
	t.Helper()
	return event.Must(event.NewMessage(event.RoleUser, content))
}

func TestAppendAssignsIncreasingPositions(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			log := New(WithStore(newStore(t)))

			var prev int64 = -1
			for i := 0; i < 5; i++ {
				stored, err := log.Append(message(t, fmt.Sprintf("m%d", i)))
				if err != nil {
					t.Fatalf("Append failed: %v", err)
				}
				if stored.Position <= prev {
					t.Errorf("Position %d not greater than %d", stored.Position, prev)
				}
				if stored.Timestamp.IsZero() {
					t.Error("Expected timestamp to be set")
				}
				prev = stored.Position
			}

			if log.Len() != 5 {
				t.Errorf("Expected 5 events, got %d", log.Len())
			}
		})
	}
}

func TestAppendDoesNotMutateInput(t *testing.T) {
	log := New()
	ev := message(t, "hello")
	_, _ = log.Append(message(t, "first"))

	stored, err := log.Append(ev)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if ev.Position != 0 || stored.Position != 1 {
		t.Errorf("Expected input untouched and stored at 1, got input=%d stored=%d", ev.Position, stored.Position)
	}
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			log := New(WithStore(newStore(t)))
			ev := message(t, "once")

			if _, err := log.Append(ev); err != nil {
				t.Fatalf("First append failed: %v", err)
			}
			if _, err := log.Append(ev); !errors.Is(err, ErrDuplicateID) {
				t.Errorf("Expected ErrDuplicateID, got %v", err)
			}
			if log.Len() != 1 {
				t.Errorf("Expected 1 event after rejected duplicate, got %d", log.Len())
			}
		})
	}
}

func TestAppendAcceptsStructurallyInvalidSequences(t *testing.T) {
	log := New()
	orphan := event.Must(event.NewObservation("read", "never-called", "output"))

	if _, err := log.Append(orphan); err != nil {
		t.Errorf("Log must not validate pairing, got %v", err)
	}
}

func TestGetLookupAndRange(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			log := New(WithStore(newStore(t)))
			ids := make([]string, 0, 600)
			for i := 0; i < 600; i++ {
				stored, err := log.Append(message(t, fmt.Sprintf("m%d", i)))
				if err != nil {
					t.Fatalf("Append failed: %v", err)
				}
				ids = append(ids, stored.ID)
			}

			ev, err := log.Get(42)
			if err != nil || ev.ID != ids[42] {
				t.Errorf("Get(42) = %v, %v", ev, err)
			}
			if _, err := log.Get(600); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound for out of range, got %v", err)
			}

			found, err := log.Lookup(ids[599])
			if err != nil || found.Position != 599 {
				t.Errorf("Lookup = %v, %v", found, err)
			}
			if _, err := log.Lookup("missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
			}

			// Range spans several pages.
			count := 0
			for i, ev := range log.Range(100, 400) {
				if ev.ID != ids[i] {
					t.Fatalf("Range index %d yielded %s, want %s", i, ev.ID, ids[i])
				}
				count++
			}
			if count != 300 {
				t.Errorf("Expected 300 events from Range, got %d", count)
			}

			// Early break.
			seen := 0
			for range log.Range(0, 600) {
				seen++
				if seen == 3 {
					break
				}
			}
			if seen != 3 {
				t.Errorf("Expected to stop after 3, got %d", seen)
			}
		})
	}
}

func TestSinceAndAll(t *testing.T) {
	log := New()
	for i := 0; i < 4; i++ {
		if _, err := log.Append(message(t, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	all, err := log.All()
	if err != nil || len(all) != 4 {
		t.Fatalf("All() = %d events, %v", len(all), err)
	}

	tail, err := log.Since(1)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if len(tail) != 2 || tail[0].Position != 2 {
		t.Errorf("Since(1) returned %v", tail)
	}

	whole, _ := log.Since(-1)
	if len(whole) != 4 {
		t.Errorf("Since(-1) should return the whole log, got %d", len(whole))
	}
}

func TestSQLiteStoreResumesExistingConversation(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer db.Close()

	first, err := NewSQLiteStore(db, "conv-a")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	log := New(WithStore(first))
	for i := 0; i < 3; i++ {
		if _, err := log.Append(message(t, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	other, err := NewSQLiteStore(db, "conv-b")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if other.Len() != 0 {
		t.Errorf("Conversations must not share events, got %d", other.Len())
	}

	resumed, err := NewSQLiteStore(db, "conv-a")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	log = New(WithStore(resumed))
	stored, err := log.Append(message(t, "m3"))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if stored.Position != 3 {
		t.Errorf("Expected resumed log to continue at position 3, got %d", stored.Position)
	}
}

func TestReplayIntoFreshLog(t *testing.T) {
	events := []*event.Event{message(t, "a"), message(t, "b")}
	log := New()

	if err := Replay(log, events); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if log.Len() != 2 {
		t.Errorf("Expected 2 events, got %d", log.Len())
	}
	if err := Replay(log, events); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Replaying the same events twice should fail with ErrDuplicateID, got %v", err)
	}
}
