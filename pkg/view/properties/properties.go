package properties

import (
	"context"

	"contextcore/pkg/event"
	"contextcore/pkg/logx"
)

// Property is one structural guarantee of a view. The set of properties is closed;
// callers choose among them with Default or by listing them explicitly.
type Property interface {
	// Name identifies the property in logs.
	Name() string
	// Enforce returns the IDs of events in current that must be removed for the property
	// to hold. all is the full filtered history, available for lookups.
	Enforce(current, all []*event.Event) map[string]struct{}
	// ManipulationIndices returns the cuts of current that keep the property intact.
	ManipulationIndices(current []*event.Event) ManipulationIndices

	property()
}

// Default returns the standard property list in enforcement order.
func Default() []Property {
	return []Property{
		ToolResultUniqueness{},
		ToolCallPairing{},
		ToolLoopAtomicity{},
		BatchAtomicity{},
	}
}

// Enforce runs every property over current until none removes anything more, and returns
// the surviving events in their original order.
func Enforce(ctx context.Context, props []Property, current, all []*event.Event) []*event.Event {
	for {
		removed := false
		for _, p := range props {
			drop := p.Enforce(current, all)
			if len(drop) == 0 {
				continue
			}
			logx.Debug(ctx, "view", "%s removed %d events", p.Name(), len(drop))
			current = without(current, drop)
			removed = true
		}
		if !removed {
			return current
		}
	}
}

// Indices intersects the manipulation indices of every property.
func Indices(props []Property, current []*event.Event) ManipulationIndices {
	out := All(len(current))
	for _, p := range props {
		out = out.Intersect(p.ManipulationIndices(current))
	}
	return out
}

func without(events []*event.Event, drop map[string]struct{}) []*event.Event {
	out := make([]*event.Event, 0, len(events))
	for _, ev := range events {
		if _, ok := drop[ev.ID]; !ok {
			out = append(out, ev)
		}
	}
	return out
}
