// Package openaiofficial provides the OpenAI summarizer client using the official OpenAI Go package.
package openaiofficial

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
)

// OfficialClient wraps the official OpenAI Go client to implement llm.LLMClient.
//
//nolint:govet // Simple struct, field alignment not critical
type OfficialClient struct {
	client          openai.Client
	model           string
	maxOutputTokens int
}

// NewOfficialClient creates a raw OpenAI client. maxOutputTokens caps the request budget
// when positive.
func NewOfficialClient(cfg llm.LLMConfig, maxOutputTokens int, opts ...option.RequestOption) *OfficialClient {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	return &OfficialClient{
		client:          openai.NewClient(append(base, opts...)...),
		model:           cfg.ModelName,
		maxOutputTokens: maxOutputTokens,
	}
}

// buildInput splits system messages into instructions and flattens the rest into a single input.
func buildInput(messages []llm.CompletionMessage) (instructions, input string) {
	var system []string
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			b.WriteString("Assistant: ")
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		default:
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		}
	}
	return strings.Join(system, "\n\n"), strings.TrimSpace(b.String())
}

// Complete implements llm.LLMClient using the Responses API.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	instructions, input := buildInput(in.Messages)
	if input == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list has no user content")
	}

	maxTokens := in.MaxTokens
	if o.maxOutputTokens > 0 && maxTokens > o.maxOutputTokens {
		maxTokens = o.maxOutputTokens
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(maxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI response contained no text output")
	}

	stopReason := "end_turn"
	if string(resp.Status) == "incomplete" {
		stopReason = "max_tokens"
	}

	return llm.CompletionResponse{
		Content:    content,
		StopReason: stopReason,
		ResponseID: resp.ID,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if classified := llmerrors.FromStatus(apiErr.StatusCode, err); classified != nil {
			return classified
		}
	}
	return llmerrors.Classify(err)
}
