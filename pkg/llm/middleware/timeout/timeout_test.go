package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
)

type slowClient struct {
	delay time.Duration
}

func (c *slowClient) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	select {
	case <-time.After(c.delay):
		return llm.CompletionResponse{Content: "summary"}, nil
	case <-ctx.Done():
		return llm.CompletionResponse{}, ctx.Err()
	}
}

func (c *slowClient) GetModelName() string { return "slow" }

func TestTimeoutIsRetryable(t *testing.T) {
	client := Middleware(10 * time.Millisecond)(&slowClient{delay: time.Second})

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if !llmerrors.Is(err, llmerrors.ErrorTypeTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !llmerrors.Retryable(err) {
		t.Error("a per-request timeout should be retryable")
	}
}

func TestFastRequestPassesThrough(t *testing.T) {
	client := Middleware(time.Second)(&slowClient{})

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil || resp.Content != "summary" {
		t.Errorf("unexpected result %q, %v", resp.Content, err)
	}
}

func TestCallerCancellationIsNotATimeout(t *testing.T) {
	client := Middleware(time.Second)(&slowClient{delay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, llm.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected the caller's cancellation, got %v", err)
	}
}

func TestZeroDurationDisables(t *testing.T) {
	base := &slowClient{}
	if Middleware(0)(base) != llm.LLMClient(base) {
		t.Error("zero duration should return the client unchanged")
	}
}
