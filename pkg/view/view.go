// Package view derives the model-facing projection of a conversation log.
//
// A View is rebuilt from the raw events: condensations are applied, synthetic summary
// events are inserted, and the structural properties are enforced until they all hold.
// Views are immutable values; every operation that changes the projection returns a new View.
package view

import (
	"context"
	"errors"
	"fmt"

	"contextcore/pkg/event"
	"contextcore/pkg/logx"
	"contextcore/pkg/view/properties"
)

// ErrNoSafeCut is returned when no manipulation index satisfies a request.
var ErrNoSafeCut = errors.New("no safe cut point")

// View is the ordered, property-satisfying projection of a log.
type View struct {
	ctx   context.Context
	props []properties.Property
	// candidates holds every LLM-convertible event folded in, before forgetting.
	candidates []*event.Event
	// base is candidates after forgetting, before enforcement and summary insertion.
	base      []*event.Event
	events    []*event.Event
	indices   properties.ManipulationIndices
	forgotten map[string]struct{}
	summary   *event.Event
	// summaryOffset is the requested insertion index of the summary before clamping.
	summaryOffset int
	// lastCondensation is the log position of the latest Condensation seen, or -1.
	lastCondensation int64
	// lastRequest is the log position of the latest CondensationRequest seen, or -1.
	lastRequest int64
	// lastPosition is the highest log position folded into the view, or -1.
	lastPosition int64
}

// Option customizes how a View is built.
type Option func(*View)

// WithProperties replaces the default property list.
func WithProperties(props ...properties.Property) Option {
	return func(v *View) {
		v.props = props
	}
}

// WithContext tags debug output with the conversation carried by ctx.
func WithContext(ctx context.Context) Option {
	return func(v *View) {
		v.ctx = ctx
	}
}

func newView(opts []Option) *View {
	v := &View{
		ctx:              context.Background(),
		props:            properties.Default(),
		forgotten:        make(map[string]struct{}),
		lastCondensation: -1,
		lastRequest:      -1,
		lastPosition:     -1,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// FromEvents builds a view from raw log events in log order.
func FromEvents(events []*event.Event, opts ...Option) *View {
	v := newView(opts)
	v.fold(events)
	v.rebuild()
	return v
}

// Empty returns a view over no events.
func Empty(opts ...Option) *View {
	return FromEvents(nil, opts...)
}

// fold absorbs raw events into the bookkeeping without enforcing properties.
func (v *View) fold(events []*event.Event) {
	for _, ev := range events {
		if ev.Position > v.lastPosition {
			v.lastPosition = ev.Position
		}
		switch p := ev.Payload.(type) {
		case event.Condensation:
			for _, id := range p.ForgottenEventIDs {
				v.forgotten[id] = struct{}{}
			}
			v.lastCondensation = ev.Position
			if summary, ok := event.SummaryFor(ev); ok {
				v.summary = summary
				v.summaryOffset = *p.SummaryOffset
			}
		case event.CondensationRequest:
			v.lastRequest = ev.Position
		default:
			if ev.IsLLMConvertible() {
				v.candidates = append(v.candidates, ev)
			}
		}
	}
}

// rebuild recomputes the visible events from the candidates.
func (v *View) rebuild() {
	base := make([]*event.Event, 0, len(v.candidates))
	for _, ev := range v.candidates {
		if _, gone := v.forgotten[ev.ID]; gone {
			continue
		}
		if _, ok := ev.Payload.(event.CondensationSummary); ok && v.summary != nil {
			// Only the latest condensation's summary is shown.
			continue
		}
		base = append(base, ev)
	}
	v.base = base
	v.enforce()
}

// enforce runs the properties over base, then inserts the summary at a safe index near
// its recorded offset. The summary carries no tool calls, so inserting it at a safe index
// cannot break a property.
func (v *View) enforce() {
	events := properties.Enforce(v.ctx, v.props, v.base, v.base)
	if removed := len(v.base) - len(events); removed > 0 {
		logx.Debug(v.ctx, "view", "Repaired view: removed %d events violating properties", removed)
	}

	if v.summary != nil {
		offset := v.placeSummary(events)
		events = append(events, nil)
		copy(events[offset+1:], events[offset:])
		events[offset] = v.summary
	}

	v.events = events
	v.indices = properties.Indices(v.props, v.events)
}

// placeSummary clamps the recorded offset to the view and moves it back to the closest
// safe index. The offset is a view index from when the condensation was made; an action
// that was pending then and answered since shifts later events, so the raw offset can
// land inside a tool-call span.
func (v *View) placeSummary(events []*event.Event) int {
	offset := min(max(v.summaryOffset, 0), len(events))
	if offset != v.summaryOffset {
		logx.Debug(v.ctx, "view", "Summary offset %d outside view of %d events, clamping", v.summaryOffset, len(events))
	}

	safe := properties.Indices(v.props, events)
	if safe.Contains(offset) {
		return offset
	}
	sorted := safe.Sorted()
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] < offset {
			logx.Debug(v.ctx, "view", "Summary offset %d splits a tool call, moving to %d", offset, sorted[i])
			return sorted[i]
		}
	}
	if len(sorted) > 0 {
		return sorted[0]
	}
	return len(events)
}

// Update extends prev with events appended to the log after it was built. When the
// suffix holds no condensation bookkeeping, the new relevant events are appended to the
// previous unenforced projection and only the properties are re-run. Otherwise the view
// is refolded from its candidates. Either way the result equals FromEvents over the log.
func Update(prev *View, suffix []*event.Event) *View {
	if len(suffix) == 0 {
		return prev
	}

	next := prev.clone()
	next.fold(suffix)

	if reason, full := needsRebuild(suffix); full {
		logx.Debug(prev.ctx, "view", "Full rebuild: %s", reason)
		next.rebuild()
		return next
	}

	for _, ev := range suffix {
		if !ev.IsLLMConvertible() {
			continue
		}
		if _, gone := next.forgotten[ev.ID]; gone {
			continue
		}
		next.base = append(next.base, ev)
	}
	next.enforce()
	return next
}

func needsRebuild(suffix []*event.Event) (string, bool) {
	for _, ev := range suffix {
		switch ev.Payload.(type) {
		case event.Condensation, event.CondensationRequest, event.CondensationSummary:
			return "suffix carries " + string(ev.Kind()), true
		}
	}
	return "", false
}

func (v *View) clone() *View {
	forgotten := make(map[string]struct{}, len(v.forgotten))
	for id := range v.forgotten {
		forgotten[id] = struct{}{}
	}
	return &View{
		ctx:              v.ctx,
		candidates:       append([]*event.Event(nil), v.candidates...),
		base:             append([]*event.Event(nil), v.base...),
		props:            v.props,
		forgotten:        forgotten,
		summary:          v.summary,
		summaryOffset:    v.summaryOffset,
		lastCondensation: v.lastCondensation,
		lastRequest:      v.lastRequest,
		lastPosition:     v.lastPosition,
	}
}

// Events returns a copy of the visible events.
func (v *View) Events() []*event.Event {
	return append([]*event.Event(nil), v.events...)
}

// Len returns the number of visible events.
func (v *View) Len() int {
	return len(v.events)
}

// At returns the visible event at index i.
func (v *View) At(i int) *event.Event {
	return v.events[i]
}

// ManipulationIndices returns the safe cut points of the view.
func (v *View) ManipulationIndices() properties.ManipulationIndices {
	return v.indices
}

// FindNextManipulationIndex returns the smallest safe cut >= threshold, or > threshold
// when strict is set.
func (v *View) FindNextManipulationIndex(threshold int, strict bool) (int, error) {
	for _, i := range v.indices.Sorted() {
		if i > threshold || (!strict && i == threshold) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: none at or after %d (strict=%t) in view of %d events", ErrNoSafeCut, threshold, strict, len(v.events))
}

// UnhandledCondensationRequest reports whether a CondensationRequest arrived after the
// latest Condensation.
func (v *View) UnhandledCondensationRequest() bool {
	return v.lastRequest > v.lastCondensation
}

// Summary returns the summary event currently shown, if any.
func (v *View) Summary() (*event.Event, bool) {
	for _, ev := range v.events {
		if _, ok := ev.Payload.(event.CondensationSummary); ok {
			return ev, true
		}
	}
	return nil, false
}

// LastPosition returns the highest log position folded into the view, or -1.
func (v *View) LastPosition() int64 {
	return v.lastPosition
}

// Properties returns the property list the view enforces.
func (v *View) Properties() []properties.Property {
	return v.props
}

// Context returns the context used to tag the view's debug output.
func (v *View) Context() context.Context {
	return v.ctx
}

// Apply previews a condensation without touching the log: it returns the view that would
// result from appending c after the events already folded in.
func (v *View) Apply(c event.Condensation) (*View, error) {
	ev, err := event.NewCondensation(c, event.WithID(event.NewID()))
	if err != nil {
		return nil, fmt.Errorf("invalid condensation: %w", err)
	}
	ev.Position = v.lastPosition + 1
	next := v.clone()
	next.fold([]*event.Event{ev})
	next.rebuild()
	return next, nil
}

// WithEvents returns a view over replacement events that keeps v's bookkeeping. It is used
// by transforming stages such as observation masking, which substitute event values without
// changing identities.
func (v *View) WithEvents(events []*event.Event) *View {
	next := v.clone()
	next.candidates = append([]*event.Event(nil), events...)
	next.base = append([]*event.Event(nil), events...)
	next.forgotten = make(map[string]struct{})
	next.summary = nil
	next.enforce()
	return next
}

// Equal reports whether both views show the same events in the same order.
// Bookkeeping such as pending condensation requests is not compared.
func (v *View) Equal(other *View) bool {
	if v.Len() != other.Len() {
		return false
	}
	for i := range v.events {
		a, b := v.events[i], other.events[i]
		if a.ID != b.ID || a.Kind() != b.Kind() || a.Text() != b.Text() {
			return false
		}
	}
	return true
}
