package condenser

import (
	"context"
	"fmt"

	"contextcore/pkg/event"
	"contextcore/pkg/logx"
	"contextcore/pkg/view"
)

// Window bounds a drop-oldest condenser.
type Window struct {
	// MaxSize is the view length above which condensation triggers.
	MaxSize int
	// KeepFirst leading events are never forgotten.
	KeepFirst int
	// HandlesRequests makes a pending CondensationRequest trigger condensation.
	HandlesRequests bool
}

// Validate checks that the window leaves room to forget something.
func (w Window) Validate() error {
	if w.MaxSize < 2 {
		return fmt.Errorf("max_size must be at least 2 (got %d)", w.MaxSize)
	}
	if w.KeepFirst < 0 {
		return fmt.Errorf("keep_first cannot be negative (got %d)", w.KeepFirst)
	}
	if w.KeepFirst >= w.MaxSize/2 {
		return fmt.Errorf("keep_first (%d) must be less than max_size/2 (%d)", w.KeepFirst, w.MaxSize/2)
	}
	return nil
}

func (w Window) shouldCondense(v *view.View) bool {
	return v.Len() > w.MaxSize || (w.HandlesRequests && v.UnhandledCondensationRequest())
}

// cut is a half-open range [start, end) of view indices to forget.
type cut struct {
	start, end int
}

// plan picks the range to forget. The target size is MaxSize/2, or half the current view
// when condensation is forced or requested. Both ends are snapped forward to safe indices.
func (w Window) plan(v *view.View, forced bool) (cut, error) {
	n := v.Len()
	target := w.MaxSize / 2
	if forced || (w.HandlesRequests && v.UnhandledCondensationRequest()) {
		target = n / 2
	}

	tail := max(target-w.KeepFirst-1, 1)

	start, err := v.FindNextManipulationIndex(w.KeepFirst, false)
	if err != nil {
		return cut{}, err
	}
	end, err := v.FindNextManipulationIndex(max(n-tail, start), false)
	if err != nil {
		return cut{}, err
	}
	if start >= end {
		return cut{}, fmt.Errorf("%w: nothing forgettable between keep_first=%d and tail=%d in view of %d events",
			ErrNoSafeCut, w.KeepFirst, tail, n)
	}
	return cut{start: start, end: end}, nil
}

// forget builds the condensation dropping c. Summary events are never listed as forgotten:
// the view replaces them whenever a newer summary arrives. When the current summary falls
// inside c and no new summary is written, its text is carried forward to the cut start.
func forget(v *view.View, c cut) event.Condensation {
	ids := make([]string, 0, c.end-c.start)
	carried := ""
	for i := c.start; i < c.end; i++ {
		ev := v.At(i)
		if s, ok := ev.Payload.(event.CondensationSummary); ok {
			carried = s.Summary
			continue
		}
		ids = append(ids, ev.ID)
	}

	cond := event.Condensation{ForgottenEventIDs: ids}
	if carried != "" {
		cond.Summary = carried
		cond.SummaryOffset = event.IntPtr(summaryOffset(v, c.start))
	}
	return cond
}

// summaryOffset converts view index i into an insertion offset for a new summary. The
// offset counts events excluding the summary currently shown, since it is replaced.
func summaryOffset(v *view.View, i int) int {
	offset := i
	for j := 0; j < i; j++ {
		if _, ok := v.At(j).Payload.(event.CondensationSummary); ok {
			offset--
		}
	}
	return offset
}

// windowed is implemented by the drop-oldest family that Force can wrap.
type windowed interface {
	Condenser
	condense(ctx context.Context, v *view.View, forced bool) (*event.Condensation, error)
}

// Rolling forgets the oldest events once the view exceeds MaxSize.
type Rolling struct {
	window Window
}

// NewRolling creates a drop-oldest condenser.
func NewRolling(w Window) (*Rolling, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("rolling condenser: %w", err)
	}
	return &Rolling{window: w}, nil
}

// ShouldCondense implements Condenser.
func (r *Rolling) ShouldCondense(v *view.View) bool {
	return r.window.shouldCondense(v)
}

// GetCondensation implements Condenser.
func (r *Rolling) GetCondensation(ctx context.Context, v *view.View) (*event.Condensation, error) {
	return r.condense(ctx, v, false)
}

func (r *Rolling) condense(ctx context.Context, v *view.View, forced bool) (*event.Condensation, error) {
	c, err := r.window.plan(v, forced)
	if err != nil {
		return nil, err
	}
	cond := forget(v, c)
	logx.Debug(ctx, "condenser", "rolling: forgetting view[%d:%d] (%d events)", c.start, c.end, len(cond.ForgottenEventIDs))
	return &cond, nil
}

// Name implements Condenser.
func (*Rolling) Name() string { return "rolling" }

func (*Rolling) condenser() {}

// Force condenses on every call, regardless of size. It implements explicit,
// user-triggered compaction on top of a drop-oldest condenser.
type Force struct {
	inner windowed
}

// NewForce wraps a Rolling or LLMSummarizing condenser.
func NewForce(inner Condenser) (*Force, error) {
	w, ok := inner.(windowed)
	if !ok {
		return nil, fmt.Errorf("force condenser cannot wrap %s", inner.Name())
	}
	return &Force{inner: w}, nil
}

// ShouldCondense implements Condenser.
func (*Force) ShouldCondense(*view.View) bool { return true }

// GetCondensation implements Condenser.
func (f *Force) GetCondensation(ctx context.Context, v *view.View) (*event.Condensation, error) {
	return f.inner.condense(ctx, v, true)
}

// Name implements Condenser.
func (*Force) Name() string { return "force" }

func (*Force) condenser() {}
