package condenser

import (
	"context"
	"fmt"

	"contextcore/pkg/event"
	"contextcore/pkg/view"
)

// MaskedContent replaces the content of observations outside the attention window.
const MaskedContent = "<MASKED>"

// ObservationMasking hides the content of old observations. It never condenses on its own;
// pipelines use it as a view stage.
type ObservationMasking struct {
	attentionWindow int
}

// NewObservationMasking keeps observation content for the last attentionWindow events.
func NewObservationMasking(attentionWindow int) (*ObservationMasking, error) {
	if attentionWindow <= 0 {
		return nil, fmt.Errorf("observation_masking condenser: attention_window must be positive (got %d)", attentionWindow)
	}
	return &ObservationMasking{attentionWindow: attentionWindow}, nil
}

// Transform returns a view whose observations older than the attention window are masked.
// Masked events keep their IDs, so condensations computed on the result apply to the log.
func (m *ObservationMasking) Transform(v *view.View) *view.View {
	cutoff := v.Len() - m.attentionWindow
	if cutoff <= 0 {
		return v
	}

	events := v.Events()
	masked := 0
	for i := 0; i < cutoff; i++ {
		obs, ok := events[i].Payload.(event.Observation)
		if !ok || obs.Content == MaskedContent {
			continue
		}
		obs.Content = MaskedContent
		replaced, err := events[i].WithPayload(obs)
		if err != nil {
			continue
		}
		events[i] = replaced
		masked++
	}
	if masked == 0 {
		return v
	}
	return v.WithEvents(events)
}

// ShouldCondense implements Condenser.
func (*ObservationMasking) ShouldCondense(*view.View) bool { return false }

// GetCondensation implements Condenser.
func (*ObservationMasking) GetCondensation(context.Context, *view.View) (*event.Condensation, error) {
	return nil, nil
}

// Name implements Condenser.
func (*ObservationMasking) Name() string { return "observation_masking" }

func (*ObservationMasking) condenser() {}
