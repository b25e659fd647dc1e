package circuit

import (
	"context"
	"errors"

	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
	"contextcore/pkg/logx"
)

// Middleware rejects requests while breaker is open. Rejections are classified as
// ServiceUnavailable so retry layers give up immediately. Calls ended by the caller's
// cancellation are not counted as provider failures.
func Middleware(breaker *Breaker, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				ok, retryIn := breaker.Allow()
				if !ok {
					open := &OpenError{Model: next.GetModelName(), RetryIn: retryIn, Failures: breaker.Failures()}
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeServiceUnavailable, open, open.Error())
				}

				resp, err := next.Complete(ctx, req)
				switch {
				case err == nil:
					breaker.Record(true)
				case ctx.Err() != nil || errors.Is(err, context.Canceled):
					breaker.Release()
				default:
					before := breaker.State()
					breaker.Record(false)
					if logger != nil && before != Open && breaker.State() == Open {
						logger.Warn("circuit opened for %s after %d consecutive failures: %v",
							next.GetModelName(), breaker.Failures(), err)
					}
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
