package condenser

import (
	"fmt"

	"contextcore/pkg/config"
	"contextcore/pkg/llm"
	"contextcore/pkg/utils"
)

// Deps carries the collaborators FromConfig may need.
type Deps struct {
	// Summarizer is required by llm_summarizing stages.
	Summarizer llm.LLMClient
	// SummarizerConfig supplies output budget and temperature for summaries.
	SummarizerConfig *config.SummarizerConfig
	// Counter is used by token_budget stages and summary rendering.
	Counter *utils.TokenCounter
}

// FromConfig builds a condenser tree from cfg. Defaults are expected to have been applied
// by config.Load or config.Parse.
func FromConfig(cfg *config.CondenserConfig, deps Deps) (Condenser, error) {
	if cfg == nil {
		return NewNoOp(), nil
	}

	window := Window{MaxSize: cfg.MaxSize, KeepFirst: cfg.First(), HandlesRequests: cfg.Requests()}

	switch cfg.Type {
	case config.CondenserNoOp:
		return NewNoOp(), nil

	case config.CondenserRolling:
		return NewRolling(window)

	case config.CondenserLLMSummarizing:
		opts := []SummaryOption{WithMaxEventTokens(cfg.MaxEventTokens), WithTokenCounter(deps.Counter)}
		if sc := deps.SummarizerConfig; sc != nil {
			opts = append(opts, WithMaxTokens(sc.MaxTokens), WithTemperature(sc.Temperature))
		}
		return NewLLMSummarizing(window, deps.Summarizer, opts...)

	case config.CondenserForce:
		var inner Condenser
		var err error
		if len(cfg.Stages) > 0 {
			inner, err = FromConfig(&cfg.Stages[0], deps)
		} else {
			inner, err = NewRolling(window)
		}
		if err != nil {
			return nil, err
		}
		return NewForce(inner)

	case config.CondenserTokenBudget:
		return NewTokenBudget(cfg.MaxTokens, cfg.First(), cfg.Requests(), deps.Counter)

	case config.CondenserObservationMasking:
		return NewObservationMasking(cfg.AttentionWindow)

	case config.CondenserPipeline:
		stages := make([]Condenser, 0, len(cfg.Stages))
		for i := range cfg.Stages {
			stage, err := FromConfig(&cfg.Stages[i], deps)
			if err != nil {
				return nil, fmt.Errorf("pipeline stage %d: %w", i, err)
			}
			stages = append(stages, stage)
		}
		return NewPipeline(stages...)

	default:
		return nil, fmt.Errorf("unknown condenser type %q", cfg.Type)
	}
}
