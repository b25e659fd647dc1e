package condenser

import (
	"context"
	"fmt"

	"contextcore/pkg/event"
	"contextcore/pkg/view"
)

// Pipeline runs stages in order against the current view. Transforming stages replace the
// view seen by later stages; the first stage that yields a condensation ends the run.
type Pipeline struct {
	stages []Condenser
}

// NewPipeline composes stages.
func NewPipeline(stages ...Condenser) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline condenser: at least one stage is required")
	}
	return &Pipeline{stages: append([]Condenser(nil), stages...)}, nil
}

// Stages returns the composed stages.
func (p *Pipeline) Stages() []Condenser {
	return append([]Condenser(nil), p.stages...)
}

// ShouldCondense implements Condenser. A pipeline with a transforming stage always runs.
func (p *Pipeline) ShouldCondense(v *view.View) bool {
	for _, stage := range p.stages {
		if stage.ShouldCondense(v) {
			return true
		}
		if _, nested := stage.(*Pipeline); nested {
			continue
		}
		if _, ok := stage.(ViewTransformer); ok {
			return true
		}
	}
	return false
}

// GetCondensation implements Condenser.
func (p *Pipeline) GetCondensation(ctx context.Context, v *view.View) (*event.Condensation, error) {
	_, cond, _, err := p.run(ctx, v)
	return cond, err
}

// Transform applies every transforming stage in order.
func (p *Pipeline) Transform(v *view.View) *view.View {
	for _, stage := range p.stages {
		if t, ok := stage.(ViewTransformer); ok {
			v = t.Transform(v)
		}
	}
	return v
}

func (p *Pipeline) run(ctx context.Context, v *view.View) (*view.View, *event.Condensation, bool, error) {
	current := v
	attempted := false
	for _, stage := range p.stages {
		if r, ok := stage.(runner); ok {
			next, cond, tried, err := r.run(ctx, current)
			attempted = attempted || tried
			if err != nil || cond != nil {
				return next, cond, attempted, err
			}
			current = next
			continue
		}
		if t, ok := stage.(ViewTransformer); ok {
			current = t.Transform(current)
		}
		if !stage.ShouldCondense(current) {
			continue
		}
		attempted = true
		cond, err := stage.GetCondensation(ctx, current)
		if err != nil {
			return current, nil, attempted, fmt.Errorf("%s stage: %w", stage.Name(), err)
		}
		if cond != nil {
			return current, cond, attempted, nil
		}
	}
	return current, nil, attempted, nil
}

// Name implements Condenser.
func (*Pipeline) Name() string { return "pipeline" }

func (*Pipeline) condenser() {}
