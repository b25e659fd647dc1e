package condenser

import (
	"context"
	"fmt"
	"strings"

	"contextcore/pkg/cancel"
	"contextcore/pkg/event"
	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
	"contextcore/pkg/logx"
	"contextcore/pkg/utils"
	"contextcore/pkg/view"
)

// DefaultSummaryPrompt instructs the summarizer.
const DefaultSummaryPrompt = `You are maintaining the memory of an agent working through a long task.
Earlier parts of its history are being removed to stay within the context budget. Write a summary
that replaces them. Keep:
- the user's goals and any constraints they stated
- decisions made and why, including approaches that failed
- files, commands, identifiers and values the agent will need again
- the current state of the work and what remains to be done

If a previous summary is given, merge it with the new events into one summary. Write plain prose
or short bullet lists. Do not invent tool calls.`

// DefaultMaxEventTokens caps each rendered event in the summarization prompt.
const DefaultMaxEventTokens = 2000

// LLMSummarizing is a Rolling condenser that replaces forgotten events with a
// model-written summary.
type LLMSummarizing struct {
	client         llm.LLMClient
	counter        *utils.TokenCounter
	prompt         string
	window         Window
	maxTokens      int
	maxEventTokens int
	temperature    float32
}

// SummaryOption configures an LLMSummarizing condenser.
type SummaryOption func(*LLMSummarizing)

// WithMaxTokens sets the output budget of the summary.
func WithMaxTokens(n int) SummaryOption {
	return func(s *LLMSummarizing) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) SummaryOption {
	return func(s *LLMSummarizing) {
		s.temperature = t
	}
}

// WithMaxEventTokens caps the tokens rendered per forgotten event.
func WithMaxEventTokens(n int) SummaryOption {
	return func(s *LLMSummarizing) {
		if n > 0 {
			s.maxEventTokens = n
		}
	}
}

// WithSystemPrompt replaces DefaultSummaryPrompt.
func WithSystemPrompt(prompt string) SummaryOption {
	return func(s *LLMSummarizing) {
		if prompt != "" {
			s.prompt = prompt
		}
	}
}

// WithTokenCounter overrides the counter used for per-event truncation.
func WithTokenCounter(tc *utils.TokenCounter) SummaryOption {
	return func(s *LLMSummarizing) {
		if tc != nil {
			s.counter = tc
		}
	}
}

// NewLLMSummarizing creates a summarizing condenser backed by client.
func NewLLMSummarizing(w Window, client llm.LLMClient, opts ...SummaryOption) (*LLMSummarizing, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("llm_summarizing condenser: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("llm_summarizing condenser: summarizer client is required")
	}
	s := &LLMSummarizing{
		client:         client,
		counter:        utils.DefaultCounter(),
		prompt:         DefaultSummaryPrompt,
		window:         w,
		maxTokens:      llm.SummaryMaxTokens,
		maxEventTokens: DefaultMaxEventTokens,
		temperature:    llm.TemperatureDefault,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ShouldCondense implements Condenser.
func (s *LLMSummarizing) ShouldCondense(v *view.View) bool {
	return s.window.shouldCondense(v)
}

// GetCondensation implements Condenser.
func (s *LLMSummarizing) GetCondensation(ctx context.Context, v *view.View) (*event.Condensation, error) {
	return s.condense(ctx, v, false)
}

func (s *LLMSummarizing) condense(ctx context.Context, v *view.View, forced bool) (*event.Condensation, error) {
	c, err := s.window.plan(v, forced)
	if err != nil {
		return nil, err
	}

	if tok, ok := cancel.FromContext(ctx); ok {
		var release context.CancelFunc
		ctx, release = tok.Bind(ctx)
		defer release()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("summarization not started: %w", err)
	}

	var previous string
	if summary, ok := v.Summary(); ok {
		previous = summary.Payload.(event.CondensationSummary).Summary
	}

	forgotten := make([]*event.Event, 0, c.end-c.start)
	for i := c.start; i < c.end; i++ {
		if _, ok := v.At(i).Payload.(event.CondensationSummary); ok {
			continue
		}
		forgotten = append(forgotten, v.At(i))
	}

	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(s.prompt),
		llm.NewUserMessage(s.render(previous, forgotten)),
	})
	req.MaxTokens = s.maxTokens
	req.Temperature = s.temperature

	logx.Debug(ctx, "llm", "summarizing %d events with %s: %s",
		len(forgotten), s.client.GetModelName(), llmerrors.SanitizePrompt(req.Messages[1].Content, 400))

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		// The call raced with cancellation; a cancelled attempt must leave no trace.
		return nil, fmt.Errorf("summarization cancelled: %w", err)
	}
	if len(resp.ToolCalls) > 0 {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt,
			fmt.Sprintf("summarizer returned %d tool calls", len(resp.ToolCalls)))
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "summarizer returned no content")
	}

	ids := make([]string, len(forgotten))
	for i, ev := range forgotten {
		ids[i] = ev.ID
	}

	return &event.Condensation{
		ForgottenEventIDs: ids,
		Summary:           summary,
		SummaryOffset:     event.IntPtr(summaryOffset(v, c.start)),
		LLMResponseID:     resp.ResponseID,
	}, nil
}

// render flattens events to plain text. Actions and results become prose lines so the
// prompt carries no tool-call blocks.
func (s *LLMSummarizing) render(previous string, events []*event.Event) string {
	var b strings.Builder
	if previous != "" {
		b.WriteString("<PREVIOUS SUMMARY>\n")
		b.WriteString(previous)
		b.WriteString("\n</PREVIOUS SUMMARY>\n\n")
	}
	b.WriteString("<EVENTS>\n")
	for _, ev := range events {
		b.WriteString(s.counter.TruncateToTokenLimit(ev.Text(), s.maxEventTokens))
		b.WriteString("\n")
	}
	b.WriteString("</EVENTS>\n")
	return b.String()
}

// Name implements Condenser.
func (*LLMSummarizing) Name() string { return "llm_summarizing" }

func (*LLMSummarizing) condenser() {}
