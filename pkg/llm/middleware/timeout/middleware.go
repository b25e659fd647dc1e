// Package timeout bounds each summarizer request.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
)

// Middleware gives every request its own deadline. A request that runs out of time
// while the caller's context is still live fails as a transient error, so a retry layer
// outside this one tries again. A zero or negative duration disables the middleware.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
					return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeTransient,
						fmt.Sprintf("%s request timed out after %v", next.GetModelName(), duration))
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
