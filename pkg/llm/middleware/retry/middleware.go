package retry

import (
	"context"
	"fmt"
	"time"

	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
	"contextcore/pkg/logx"
)

// Middleware returns a middleware that retries failed completions according to policy.
// Once retries are exhausted on a retryable error the last error is wrapped as
// ServiceUnavailable. Cancellation of ctx ends the loop immediately.
func Middleware(policy *Policy, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						if logger != nil {
							logger.Warn("retrying %s (attempt %d/%d) in %v: %v",
								next.GetModelName(), attempt, policy.Config.MaxAttempts, delay, lastErr)
						}
						if delay > 0 {
							timer := time.NewTimer(delay)
							select {
							case <-ctx.Done():
								timer.Stop()
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-timer.C:
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}

					lastErr = err

					if ctx.Err() != nil || !policy.ShouldRetry(err) {
						return llm.CompletionResponse{}, err //nolint:wrapcheck // pass through unchanged
					}
				}

				if policy.Config.MaxAttempts > 1 {
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return llm.CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
