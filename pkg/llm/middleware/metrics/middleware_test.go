package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
)

type observation struct {
	model             string
	prompt, completed int
	success           bool
	errorType         string
}

type fakeRecorder struct {
	observed []observation
}

func (f *fakeRecorder) ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, _ time.Duration) {
	f.observed = append(f.observed, observation{model, promptTokens, completionTokens, success, errorType})
}

func client(resp llm.CompletionResponse, err error) llm.LLMClient {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) { return resp, err },
		func() string { return "test-model" },
	)
}

func TestMiddlewareRecordsProviderUsage(t *testing.T) {
	rec := &fakeRecorder{}
	c := llm.Chain(client(llm.CompletionResponse{Content: "ok", Usage: llm.Usage{InputTokens: 120, OutputTokens: 30}}, nil),
		Middleware(rec, nil, nil))

	if _, err := c.Complete(context.Background(), llm.NewCompletionRequest(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := observation{"test-model", 120, 30, true, ""}
	if len(rec.observed) != 1 || rec.observed[0] != want {
		t.Errorf("observed %+v, want %+v", rec.observed, want)
	}
}

func TestMiddlewareCountsTokensWithoutUsage(t *testing.T) {
	rec := &fakeRecorder{}
	c := llm.Chain(client(llm.CompletionResponse{Content: "a short summary"}, nil), Middleware(rec, nil, nil))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("summarize these events please")})
	if _, err := c.Complete(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.observed[0].prompt == 0 || rec.observed[0].completed == 0 {
		t.Errorf("expected tiktoken counts, got %+v", rec.observed[0])
	}
}

func TestMiddlewareRecordsErrorType(t *testing.T) {
	rec := &fakeRecorder{}
	boom := llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")
	c := llm.Chain(client(llm.CompletionResponse{}, boom), Middleware(rec, nil, nil))

	_, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to pass through, got %v", err)
	}
	got := rec.observed[0]
	if got.success || got.errorType != "rate_limit" || got.prompt != 0 {
		t.Errorf("unexpected observation %+v", got)
	}
}

func TestNopRecorder(t *testing.T) {
	c := llm.Chain(client(llm.CompletionResponse{Content: "x"}, nil), Middleware(nil, nil, nil))
	if _, err := c.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
