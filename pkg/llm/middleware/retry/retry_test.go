package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
)

func fastPolicy(attempts int) *Policy {
	return NewPolicy(Config{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}, nil)
}

type scriptedClient struct {
	errs  []error
	calls int
}

func (c *scriptedClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	if c.calls <= len(c.errs) && c.errs[c.calls-1] != nil {
		return llm.CompletionResponse{}, c.errs[c.calls-1]
	}
	return llm.CompletionResponse{Content: "summary"}, nil
}

func (c *scriptedClient) GetModelName() string { return "scripted" }

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("op: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
		{"auth", llmerrors.NewError(llmerrors.ErrorTypeAuth, "invalid api key"), false},
		{"bad prompt", llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "too long"), false},
		{"service unavailable", llmerrors.NewError(llmerrors.ErrorTypeServiceUnavailable, "exhausted"), false},
		{"rate limit", llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"), true},
		{"empty response", llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no content"), true},
		{"unclassified 503", errors.New("upstream returned 503"), true},
		{"unclassified connection reset", errors.New("read: connection reset by peer"), true},
		{"unclassified other", errors.New("invalid argument"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffFactor: 2}, nil)

	want := []time.Duration{0, 0, 100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	for attempt, d := range want {
		if got := p.CalculateDelay(attempt); got != d {
			t.Errorf("CalculateDelay(%d) = %v, want %v", attempt, got, d)
		}
	}
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2, Jitter: true}, nil)
	for i := 0; i < 50; i++ {
		d := p.CalculateDelay(2)
		if d < 90*time.Millisecond || d > 110*time.Millisecond {
			t.Fatalf("jittered delay %v out of bounds", d)
		}
	}
}

func TestNewPolicyClampsAttempts(t *testing.T) {
	if p := NewPolicy(Config{}, nil); p.Config.MaxAttempts != 1 {
		t.Errorf("expected at least one attempt, got %d", p.Config.MaxAttempts)
	}
}

func TestMiddlewareRecoversFromTransientErrors(t *testing.T) {
	base := &scriptedClient{errs: []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "502"),
		llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429"),
	}}

	client := llm.Chain(base, Middleware(fastPolicy(3), nil))
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "summary" || base.calls != 3 {
		t.Errorf("expected success on third call, got %q after %d calls", resp.Content, base.calls)
	}
}

func TestMiddlewareExhaustsToServiceUnavailable(t *testing.T) {
	transient := llmerrors.NewError(llmerrors.ErrorTypeTransient, "503")
	base := &scriptedClient{errs: []error{transient, transient, transient}}

	_, err := llm.Chain(base, Middleware(fastPolicy(3), nil)).Complete(context.Background(), llm.CompletionRequest{})
	if !llmerrors.IsServiceUnavailable(err) {
		t.Fatalf("expected service unavailable, got %v", err)
	}
	if !errors.Is(err, transient) {
		t.Error("expected last error to be wrapped")
	}
	if base.calls != 3 {
		t.Errorf("expected 3 calls, got %d", base.calls)
	}
}

func TestMiddlewareDoesNotRetryPermanentErrors(t *testing.T) {
	auth := llmerrors.NewError(llmerrors.ErrorTypeAuth, "401")
	base := &scriptedClient{errs: []error{auth}}

	_, err := llm.Chain(base, Middleware(fastPolicy(3), nil)).Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, auth) || base.calls != 1 {
		t.Errorf("expected single call returning auth error, got %v after %d calls", err, base.calls)
	}
}

func TestMiddlewareStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	base := &scriptedClient{}
	client := llm.Chain(llm.WrapClient(
		func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			cancel()
			_, _ = base.Complete(ctx, req)
			return llm.CompletionResponse{}, fmt.Errorf("aborted: %w", ctx.Err())
		},
		base.GetModelName,
	), Middleware(fastPolicy(5), nil))

	_, err := client.Complete(ctx, llm.CompletionRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
	if base.calls != 1 {
		t.Errorf("expected no retries after cancellation, got %d calls", base.calls)
	}
}
