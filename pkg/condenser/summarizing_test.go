package condenser

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextcore/internal/mocks"
	"contextcore/pkg/cancel"
	"contextcore/pkg/event"
	"contextcore/pkg/llm"
	"contextcore/pkg/llm/llmerrors"
	"contextcore/pkg/metrics"
)

func toolConversation(t *testing.T) *convo {
	t.Helper()
	return newConvo(t,
		sys("s"),
		user("u1"),
		action("a1", "t1"), observation("o1", "t1"),
		assistant("r1", "build passes"),
		user("u2"), user("u3"), user("u4"), user("u5"),
	)
}

func TestLLMSummarizingBuildsCondensation(t *testing.T) {
	c := toolConversation(t)
	v := c.view()

	client := mocks.NewMockLLMClient()
	client.RespondWith("  The agent ran make and the build passes.  ")
	s, err := NewLLMSummarizing(Window{MaxSize: 8, KeepFirst: 1}, client, WithMaxTokens(300), WithTemperature(0.1))
	require.NoError(t, err)
	require.True(t, s.ShouldCondense(v))

	out := Condense(context.Background(), s, v)
	require.True(t, out.Condensed(), "unexpected skip: %v", out.Err)

	cond := out.Condensation
	assert.Equal(t, []string{"u1", "a1", "o1", "r1", "u2", "u3"}, cond.ForgottenEventIDs)
	assert.Equal(t, "The agent ran make and the build passes.", cond.Summary)
	require.NotNil(t, cond.SummaryOffset)
	assert.Equal(t, 1, *cond.SummaryOffset)
	assert.Equal(t, "mock-response", cond.LLMResponseID)

	calls := client.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, 300, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, llm.RoleUser, req.Messages[1].Role)

	prompt := req.Messages[1].Content
	assert.Contains(t, prompt, "ACTION run [t1]")
	assert.Contains(t, prompt, "OBSERVATION run [t1]: output of t1")
	assert.NotContains(t, prompt, "msg u4", "kept events are not summarized")
	assert.NotContains(t, prompt, "PREVIOUS SUMMARY")

	c.commit(cond)
	after := c.view()
	assert.Equal(t, []string{"SYSTEM: you are an agent", "SUMMARY: The agent ran make and the build passes.",
		"USER: msg u4", "USER: msg u5"}, texts(after))
}

func TestLLMSummarizingMergesPreviousSummary(t *testing.T) {
	c := newConvo(t, append([]*event.Event{sys("s")}, messages("m", 14)...)...)
	client := mocks.NewMockLLMClient()
	client.RespondWithSequence([]llm.CompletionResponse{{Content: "summary one"}, {Content: "summary two"}})

	s, err := NewLLMSummarizing(Window{MaxSize: 10, KeepFirst: 1}, client)
	require.NoError(t, err)

	first := Condense(context.Background(), s, c.view())
	require.True(t, first.Condensed())
	c.commit(first.Condensation)
	c.add(messages("n", 8)...)

	v := c.view()
	require.Equal(t, 13, v.Len())
	second := Condense(context.Background(), s, v)
	require.True(t, second.Condensed(), "unexpected skip: %v", second.Err)
	assert.Equal(t, 1, *second.Condensation.SummaryOffset)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].Messages[1].Content, "<PREVIOUS SUMMARY>\nsummary one\n</PREVIOUS SUMMARY>")
	assert.NotContains(t, strings.Join(second.Condensation.ForgottenEventIDs, ","), ":summary")

	c.commit(second.Condensation)
	after := c.view()
	summaries := 0
	for _, ev := range after.Events() {
		if _, ok := ev.Payload.(event.CondensationSummary); ok {
			summaries++
			assert.Equal(t, "SUMMARY: summary two", ev.Text())
		}
	}
	assert.Equal(t, 1, summaries)
	shown, ok := after.Summary()
	require.True(t, ok)
	assert.Equal(t, 1, indexOf(after.Events(), shown.ID))
}

func TestSummaryOffsetSkipsShownSummary(t *testing.T) {
	c := newConvo(t, sys("s"), user("u0"), user("u1"), user("u2"), user("u3"))
	c.commit(&event.Condensation{Summary: "pinned", SummaryOffset: event.IntPtr(2)})
	v := c.view()
	require.Equal(t, 6, v.Len())
	_, isSummary := v.At(2).Payload.(event.CondensationSummary)
	require.True(t, isSummary)

	assert.Equal(t, 1, summaryOffset(v, 1))
	assert.Equal(t, 2, summaryOffset(v, 2))
	assert.Equal(t, 3, summaryOffset(v, 4))
}

func TestLLMSummarizingCancelledMidFlight(t *testing.T) {
	c := toolConversation(t)
	v := c.view()
	logLen := c.log.Len()

	client := mocks.NewBlockingLLMClient()
	s, err := NewLLMSummarizing(Window{MaxSize: 6, KeepFirst: 1}, client)
	require.NoError(t, err)

	tok := cancel.New()
	ctx := cancel.WithToken(context.Background(), tok)
	go func() {
		<-client.Started
		tok.Cancel()
	}()

	rec := &fakeRecorder{}
	out := Condense(ctx, s, v, WithRecorder(rec))

	assert.Same(t, v, out.View)
	assert.False(t, out.Condensed())
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, logLen, c.log.Len())
	assert.True(t, c.view().Equal(v))
	require.Len(t, rec.obs, 1)
	assert.Equal(t, metrics.OutcomeCancelled, rec.obs[0].outcome)
}

func TestLLMSummarizingCancelledBeforeStart(t *testing.T) {
	c := toolConversation(t)
	client := mocks.NewMockLLMClient()
	s, err := NewLLMSummarizing(Window{MaxSize: 6, KeepFirst: 1}, client)
	require.NoError(t, err)

	tok := cancel.New()
	tok.Cancel()

	_, err = s.GetCondensation(cancel.WithToken(context.Background(), tok), c.view())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.Calls())
}

func TestLLMSummarizingFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*mocks.MockLLMClient)
		errType llmerrors.ErrorType
	}{
		{"provider error", func(m *mocks.MockLLMClient) {
			m.FailCompleteWith(llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"))
		}, llmerrors.ErrorTypeAuth},
		{"tool calls", func(m *mocks.MockLLMClient) {
			m.RespondWithToolCall("run", map[string]any{"cmd": "ls"})
		}, llmerrors.ErrorTypeBadPrompt},
		{"empty summary", func(m *mocks.MockLLMClient) {
			m.RespondWith("   ")
		}, llmerrors.ErrorTypeEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := toolConversation(t).view()
			client := mocks.NewMockLLMClient()
			tt.setup(client)
			s, err := NewLLMSummarizing(Window{MaxSize: 6, KeepFirst: 1}, client)
			require.NoError(t, err)

			rec := &fakeRecorder{}
			out := Condense(context.Background(), s, v, WithRecorder(rec))
			assert.Same(t, v, out.View)
			assert.False(t, out.Condensed())
			assert.True(t, llmerrors.Is(out.Err, tt.errType), "got %v", out.Err)
			require.Len(t, rec.obs, 1)
			assert.Equal(t, metrics.OutcomeFailed, rec.obs[0].outcome)
		})
	}
}

func TestNewLLMSummarizingRequiresClient(t *testing.T) {
	_, err := NewLLMSummarizing(Window{MaxSize: 6, KeepFirst: 1}, nil)
	assert.Error(t, err)
}

func TestForceWrapsSummarizer(t *testing.T) {
	c := newConvo(t, sys("s"), user("u1"), user("u2"), user("u3"))
	client := mocks.NewMockLLMClient()
	s, err := NewLLMSummarizing(Window{MaxSize: 100, KeepFirst: 1}, client)
	require.NoError(t, err)
	f, err := NewForce(s)
	require.NoError(t, err)

	out := Condense(context.Background(), f, c.view())
	require.True(t, out.Condensed())
	assert.Equal(t, "Mock summary", out.Condensation.Summary)
	assert.Equal(t, "force(llm_summarizing(max_size=100, keep_first=1, model=mock-model))", Describe(f))
}
