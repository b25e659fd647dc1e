package condenser

import (
	"context"
	"fmt"

	"contextcore/pkg/event"
	"contextcore/pkg/logx"
	"contextcore/pkg/utils"
	"contextcore/pkg/view"
)

// TokenBudget forgets the oldest events once the view's estimated token count exceeds
// maxTokens, aiming for half the budget.
type TokenBudget struct {
	counter         *utils.TokenCounter
	maxTokens       int
	keepFirst       int
	handlesRequests bool
}

// NewTokenBudget creates a token-budget condenser. A nil counter uses utils.DefaultCounter.
func NewTokenBudget(maxTokens, keepFirst int, handlesRequests bool, counter *utils.TokenCounter) (*TokenBudget, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("token_budget condenser: max_tokens must be positive (got %d)", maxTokens)
	}
	if keepFirst < 0 {
		return nil, fmt.Errorf("token_budget condenser: keep_first cannot be negative (got %d)", keepFirst)
	}
	if counter == nil {
		counter = utils.DefaultCounter()
	}
	return &TokenBudget{counter: counter, maxTokens: maxTokens, keepFirst: keepFirst, handlesRequests: handlesRequests}, nil
}

func (t *TokenBudget) sizes(v *view.View) ([]int, int) {
	sizes := make([]int, v.Len())
	total := 0
	for i := range sizes {
		sizes[i] = t.counter.CountTokens(v.At(i).Text())
		total += sizes[i]
	}
	return sizes, total
}

// ShouldCondense implements Condenser.
func (t *TokenBudget) ShouldCondense(v *view.View) bool {
	if t.handlesRequests && v.UnhandledCondensationRequest() {
		return true
	}
	_, total := t.sizes(v)
	return total > t.maxTokens
}

// GetCondensation implements Condenser.
func (t *TokenBudget) GetCondensation(ctx context.Context, v *view.View) (*event.Condensation, error) {
	sizes, total := t.sizes(v)
	target := t.maxTokens / 2

	start, err := v.FindNextManipulationIndex(t.keepFirst, false)
	if err != nil {
		return nil, err
	}

	// Walk forward from start until enough tokens are dropped, then snap to a safe cut.
	i := start
	for remaining := total; i < len(sizes) && remaining > target; i++ {
		remaining -= sizes[i]
	}
	if i == start && t.handlesRequests && v.UnhandledCondensationRequest() {
		i = start + 1
	}

	end, err := v.FindNextManipulationIndex(i, false)
	if err != nil {
		return nil, err
	}
	// Forgetting everything after keep_first would leave the model without a latest turn.
	if end >= v.Len() && v.Len() > 0 {
		if end, err = lastCutBefore(v, v.Len()); err != nil {
			return nil, err
		}
	}
	if start >= end {
		return nil, fmt.Errorf("%w: %d tokens over budget but no cut after keep_first=%d", ErrNoSafeCut, total-t.maxTokens, t.keepFirst)
	}

	cond := forget(v, cut{start: start, end: end})
	logx.Debug(ctx, "condenser", "token_budget: %d tokens, forgetting view[%d:%d]", total, start, end)
	return &cond, nil
}

// lastCutBefore returns the largest safe index strictly below limit.
func lastCutBefore(v *view.View, limit int) (int, error) {
	sorted := v.ManipulationIndices().Sorted()
	for k := len(sorted) - 1; k >= 0; k-- {
		if sorted[k] < limit {
			return sorted[k], nil
		}
	}
	return 0, fmt.Errorf("%w: none below %d", ErrNoSafeCut, limit)
}

// Name implements Condenser.
func (*TokenBudget) Name() string { return "token_budget" }

func (*TokenBudget) condenser() {}
