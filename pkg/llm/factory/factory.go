// Package factory builds summarizer clients with their middleware chain.
package factory

import (
	"context"
	"fmt"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"contextcore/pkg/config"
	"contextcore/pkg/llm"
	"contextcore/pkg/llm/internal/llmimpl/anthropic"
	"contextcore/pkg/llm/internal/llmimpl/google"
	"contextcore/pkg/llm/internal/llmimpl/ollama"
	"contextcore/pkg/llm/internal/llmimpl/openaiofficial"
	"contextcore/pkg/llm/middleware/circuit"
	"contextcore/pkg/llm/middleware/metrics"
	"contextcore/pkg/llm/middleware/retry"
	"contextcore/pkg/llm/middleware/timeout"
	"contextcore/pkg/logx"
)

// NewClient creates the summarizer client described by cfg. The API key comes from
// decrypted secrets or the environment; Ollama uses the configured host instead.
// A nil recorder disables metrics.
func NewClient(ctx context.Context, cfg *config.SummarizerConfig, recorder metrics.Recorder, logger *logx.Logger) (llm.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("summarizer configuration is required")
	}
	if logger == nil {
		logger = logx.NewLogger("summarizer")
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}

	provider := cfg.Provider
	if provider == "" {
		var err error
		provider, err = config.GetModelProvider(cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to determine provider for model %s: %w", cfg.Model, err)
		}
	}

	llmCfg := llm.LLMConfig{
		ModelName:   cfg.Model,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	key, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}
	if provider == config.ProviderOllama {
		if llmCfg.BaseURL == "" {
			llmCfg.BaseURL = key
		}
	} else {
		llmCfg.APIKey = key
	}

	if err := llmCfg.Validate(provider != config.ProviderOllama); err != nil {
		return nil, fmt.Errorf("invalid summarizer configuration: %w", err)
	}

	// SDK-level retries are disabled; the retry middleware owns backoff.
	var raw llm.LLMClient
	switch provider {
	case config.ProviderAnthropic:
		raw = anthropic.NewClaudeClient(llmCfg, anthropicopt.WithMaxRetries(0))
	case config.ProviderOpenAI:
		raw = openaiofficial.NewOfficialClient(llmCfg, cfg.MaxTokens, openaiopt.WithMaxRetries(0))
	case config.ProviderGoogle:
		raw, err = google.NewGeminiClient(ctx, llmCfg)
	case config.ProviderOllama:
		raw, err = ollama.NewOllamaClient(llmCfg, nil)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	if err != nil {
		return nil, err
	}

	return Wrap(raw, cfg, recorder, logger), nil
}

// Wrap applies the standard middleware chain to a raw client:
// Metrics -> Circuit -> Retry -> Timeout -> RawClient. Metrics observe the final outcome
// after retries, the circuit counts one failure per exhausted call, and the timeout bounds
// each attempt separately.
func Wrap(raw llm.LLMClient, cfg *config.SummarizerConfig, recorder metrics.Recorder, logger *logx.Logger) llm.LLMClient {
	if cfg == nil {
		cfg = &config.SummarizerConfig{}
	}
	rc := cfg.Retry

	retryConfig := retry.DefaultConfig
	if rc.MaxAttempts > 0 {
		retryConfig.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialDelay > 0 {
		retryConfig.InitialDelay = rc.InitialDelay
	}
	if rc.MaxDelay > 0 {
		retryConfig.MaxDelay = rc.MaxDelay
	}
	if rc.BackoffFactor > 0 {
		retryConfig.BackoffFactor = rc.BackoffFactor
	}
	if rc.Jitter != nil {
		retryConfig.Jitter = *rc.Jitter
	}

	breaker := circuit.New(circuit.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		Cooldown:         cfg.Circuit.Cooldown,
	})

	return llm.Chain(raw,
		metrics.Middleware(recorder, nil, logger),
		circuit.Middleware(breaker, logger),
		retry.Middleware(retry.NewPolicy(retryConfig, nil), logger),
		timeout.Middleware(cfg.Timeout),
	)
}
