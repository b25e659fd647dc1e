// Package compliance re-validates the raw event stream against the tool-call protocol and
// reports violations. It observes only: the log is never changed and nothing is repaired.
package compliance

import (
	"fmt"

	"contextcore/pkg/event"
)

// Violation is one protocol breach found in the raw stream.
type Violation struct {
	Context     map[string]any `json:"context,omitempty"`
	Property    string         `json:"property"`
	EventID     string         `json:"event_id"`
	Description string         `json:"description"`
}

// String implements fmt.Stringer.
func (v Violation) String() string {
	return fmt.Sprintf("%s at %s: %s", v.Property, v.EventID, v.Description)
}

// Monitor is a streaming state machine over one conversation's log. It is not safe for
// concurrent use; the agent loop that appends events also feeds the monitor.
type Monitor struct {
	state      *State
	checks     []Check
	reporters  []Reporter
	violations []Violation
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithChecks replaces DefaultChecks. Checks run in the given order.
func WithChecks(checks ...Check) Option {
	return func(m *Monitor) {
		m.checks = append([]Check(nil), checks...)
	}
}

// WithReporters adds sinks notified of every violation.
func WithReporters(reporters ...Reporter) Option {
	return func(m *Monitor) {
		m.reporters = append(m.reporters, reporters...)
	}
}

// New creates a monitor with an empty state.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		state:  NewState(),
		checks: DefaultChecks(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe runs every check against ev, reports what they find, then advances the state.
func (m *Monitor) Observe(ev *event.Event) []Violation {
	var found []Violation
	for _, check := range m.checks {
		if v, ok := check.Evaluate(m.state, ev); ok {
			found = append(found, v)
		}
	}

	for _, v := range found {
		for _, r := range m.reporters {
			r.Report(v)
		}
	}
	m.violations = append(m.violations, found...)

	apply(m.state, ev)
	return found
}

// Replay resets the monitor and observes events in order. It returns every violation found.
func (m *Monitor) Replay(events []*event.Event) []Violation {
	m.Reset()
	var all []Violation
	for _, ev := range events {
		all = append(all, m.Observe(ev)...)
	}
	return all
}

// Reset clears the state and the recorded violations.
func (m *Monitor) Reset() {
	m.state = NewState()
	m.violations = nil
}

// Violations returns every violation observed since the last reset.
func (m *Monitor) Violations() []Violation {
	return append([]Violation(nil), m.violations...)
}

// State returns a copy of the current state.
func (m *Monitor) State() *State {
	return m.state.Clone()
}
