// Package eventlog provides the append-only conversation event log and its storage backends.
package eventlog

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"contextcore/pkg/event"
	"contextcore/pkg/logx"
)

// pageSize bounds how many events Range pulls from the store at once.
const pageSize = 256

// Log is the append-only, totally ordered sequence of events for one conversation.
// Positions are assigned on append and equal the event's index in the log.
type Log struct {
	store  Store
	logger *logx.Logger
	err    error
	mu     sync.RWMutex
}

// Option customizes a Log.
type Option func(*Log)

// WithStore selects the storage backend. The default is a MemoryStore.
func WithStore(store Store) Option {
	return func(l *Log) {
		l.store = store
	}
}

// New creates an empty log, or a log over an existing store.
func New(opts ...Option) *Log {
	l := &Log{
		logger: logx.NewLogger("eventlog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	return l
}

// Append assigns the next position to a copy of ev, stamps its timestamp if unset,
// stores it and returns the stored event. Structural problems such as unpaired tool
// calls are never rejected here; only storage failures and duplicate IDs are errors.
func (l *Log) Append(ev *event.Event) (*event.Event, error) {
	if ev == nil || ev.Payload == nil {
		return nil, fmt.Errorf("%w: nil event or payload", event.ErrMalformedEvent)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *ev
	stored.Position = int64(l.store.Len())
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	if err := l.store.Append(&stored); err != nil {
		return nil, fmt.Errorf("failed to append event %s: %w", ev.ID, err)
	}

	logx.Debug(context.Background(), "eventlog", "Appended %s", &stored)
	return &stored, nil
}

// Len returns the number of events in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Len()
}

// Get returns the event at index i.
func (l *Log) Get(i int) (*event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, err := l.store.Get(i)
	if err != nil {
		return nil, fmt.Errorf("failed to get event %d: %w", i, err)
	}
	return ev, nil
}

// Lookup returns the event with the given ID.
func (l *Log) Lookup(id string) (*event.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, err := l.store.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up event: %w", err)
	}
	return ev, nil
}

// Range yields the events with index in [from, to), paging from the store so long
// histories are never fully materialized. A storage error stops the iteration and is
// reported by Err.
func (l *Log) Range(from, to int) iter.Seq2[int, *event.Event] {
	return func(yield func(int, *event.Event) bool) {
		for start := from; start < to; start += pageSize {
			end := min(start+pageSize, to)

			l.mu.RLock()
			page, err := l.store.Slice(start, end)
			l.mu.RUnlock()
			if err != nil {
				l.setErr(fmt.Errorf("failed to read events [%d,%d): %w", start, end, err))
				return
			}
			if len(page) == 0 {
				return
			}
			for i, ev := range page {
				if !yield(start+i, ev) {
					return
				}
			}
		}
	}
}

// All returns every event in order.
func (l *Log) All() ([]*event.Event, error) {
	return l.collect(0)
}

// Since returns the events whose position is strictly greater than position.
// Since(-1) returns the whole log.
func (l *Log) Since(position int64) ([]*event.Event, error) {
	return l.collect(int(position) + 1)
}

func (l *Log) collect(from int) ([]*event.Event, error) {
	l.mu.RLock()
	n := l.store.Len()
	l.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	out := make([]*event.Event, 0, max(n-from, 0))
	l.clearErr()
	for _, ev := range l.Range(from, n) {
		out = append(out, ev)
	}
	if err := l.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Err returns the storage error that stopped the last Range, if any.
func (l *Log) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

func (l *Log) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
	l.logger.Error("%v", err)
}

func (l *Log) clearErr() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = nil
}
