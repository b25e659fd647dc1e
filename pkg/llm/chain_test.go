package llm

import (
	"context"
	"errors"
	"testing"
)

type mockLLMClient struct {
	completeFunc     func(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	getModelNameFunc func() string
}

func (m *mockLLMClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, req)
	}
	return CompletionResponse{}, nil
}

func (m *mockLLMClient) GetModelName() string {
	if m.getModelNameFunc != nil {
		return m.getModelNameFunc()
	}
	return "mock"
}

func TestWrapClient(t *testing.T) {
	completeCalled := false
	modelNameCalled := false

	client := WrapClient(
		func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
			completeCalled = true
			return CompletionResponse{Content: "wrapped"}, nil
		},
		func() string {
			modelNameCalled = true
			return "wrapped-model"
		},
	)

	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("test")}))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !completeCalled || resp.Content != "wrapped" {
		t.Errorf("Complete not delegated, got %q", resp.Content)
	}

	if client.GetModelName() != "wrapped-model" || !modelNameCalled {
		t.Error("GetModelName not delegated")
	}
}

func appendMiddleware(tag string) Middleware {
	return func(next LLMClient) LLMClient {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				req.Messages = append(req.Messages, NewUserMessage(tag))
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return resp, err
				}
				resp.Content = tag + "(" + resp.Content + ")"
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

func TestChainOrder(t *testing.T) {
	var seen []string
	base := &mockLLMClient{
		completeFunc: func(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
			for _, m := range req.Messages {
				seen = append(seen, m.Content)
			}
			return CompletionResponse{Content: "base"}, nil
		},
	}

	client := Chain(base, appendMiddleware("mw1"), appendMiddleware("mw2"), appendMiddleware("mw3"))
	resp, err := client.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "mw1(mw2(mw3(base)))" {
		t.Errorf("expected outermost-first wrapping, got %q", resp.Content)
	}
	if len(seen) != 3 || seen[0] != "mw1" || seen[2] != "mw3" {
		t.Errorf("expected requests to pass mw1 first, got %v", seen)
	}
}

func TestChainNoMiddleware(t *testing.T) {
	base := &mockLLMClient{}
	if Chain(base) != LLMClient(base) {
		t.Error("Chain without middleware should return the base client")
	}
}

func TestChainPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	base := &mockLLMClient{
		completeFunc: func(context.Context, CompletionRequest) (CompletionResponse, error) {
			return CompletionResponse{}, boom
		},
	}

	_, err := Chain(base, appendMiddleware("mw")).Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, boom) {
		t.Errorf("expected error to pass through, got %v", err)
	}
}

func TestLLMConfigValidate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        LLMConfig
		requireKey bool
		wantErr    bool
	}{
		{"valid", LLMConfig{APIKey: "k", ModelName: "m", MaxTokens: 10, Temperature: 0.2}, true, false},
		{"missing key", LLMConfig{ModelName: "m", MaxTokens: 10}, true, true},
		{"local provider without key", LLMConfig{ModelName: "m", MaxTokens: 10}, false, false},
		{"missing model", LLMConfig{APIKey: "k", MaxTokens: 10}, true, true},
		{"zero tokens", LLMConfig{APIKey: "k", ModelName: "m"}, true, true},
		{"temperature too high", LLMConfig{APIKey: "k", ModelName: "m", MaxTokens: 10, Temperature: 2.5}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.requireKey)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewCompletionRequestDefaults(t *testing.T) {
	req := NewCompletionRequest([]CompletionMessage{NewSystemMessage("sys"), NewUserMessage("hi")})

	if req.MaxTokens != SummaryMaxTokens || req.Temperature != TemperatureDefault {
		t.Errorf("unexpected defaults: %+v", req)
	}
	if req.Messages[0].Role != RoleSystem || req.Messages[1].Role != RoleUser {
		t.Errorf("unexpected roles: %+v", req.Messages)
	}
}
