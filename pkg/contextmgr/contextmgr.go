// Package contextmgr ties one conversation's event log, view, compliance monitor and
// condenser together behind the calls an agent loop makes each turn.
package contextmgr

import (
	"context"
	"fmt"
	"sync"

	"contextcore/pkg/compliance"
	"contextcore/pkg/condenser"
	"contextcore/pkg/event"
	"contextcore/pkg/eventlog"
	"contextcore/pkg/logx"
	"contextcore/pkg/utils"
	"contextcore/pkg/view"
)

// Recorder receives condensation outcomes and view sizes. *metrics.Registry satisfies it.
type Recorder interface {
	condenser.Recorder
	SetViewSize(conversationID string, n int)
}

// ContextManager manages the context of one conversation. It is safe for concurrent use,
// but Prepare calls are expected to come from a single agent loop.
type ContextManager struct {
	log       *eventlog.Log
	view      *view.View
	monitor   *compliance.Monitor
	condenser condenser.Condenser
	writer    *eventlog.Writer
	recorder  Recorder
	counter   *utils.TokenCounter
	logger    *logx.Logger
	convID    string
	mu        sync.Mutex
}

// Option customizes a ContextManager.
type Option func(*ContextManager)

// WithLog uses an existing log. Events already in it are folded into the view and
// replayed through the monitor.
func WithLog(log *eventlog.Log) Option {
	return func(cm *ContextManager) {
		cm.log = log
	}
}

// WithCondenser selects the condensation strategy. The default never condenses.
func WithCondenser(c condenser.Condenser) Option {
	return func(cm *ContextManager) {
		cm.condenser = c
	}
}

// WithMonitor replaces the default monitor, which logs violations.
func WithMonitor(m *compliance.Monitor) Option {
	return func(cm *ContextManager) {
		cm.monitor = m
	}
}

// WithWriter mirrors every appended event to a JSONL writer.
func WithWriter(w *eventlog.Writer) Option {
	return func(cm *ContextManager) {
		cm.writer = w
	}
}

// WithRecorder records condensation outcomes and view sizes.
func WithRecorder(r Recorder) Option {
	return func(cm *ContextManager) {
		cm.recorder = r
	}
}

// WithTokenCounter sets the counter used by GetContextSummary.
func WithTokenCounter(tc *utils.TokenCounter) Option {
	return func(cm *ContextManager) {
		cm.counter = tc
	}
}

// NewContextManager creates a context manager for conversationID.
func NewContextManager(conversationID string, opts ...Option) (*ContextManager, error) {
	cm := &ContextManager{
		convID: conversationID,
		logger: logx.NewLogger("contextmgr"),
	}
	for _, opt := range opts {
		opt(cm)
	}
	if cm.log == nil {
		cm.log = eventlog.New()
	}
	if cm.condenser == nil {
		cm.condenser = condenser.NewNoOp()
	}
	if cm.monitor == nil {
		cm.monitor = compliance.New(compliance.WithReporters(compliance.NewLogReporter(cm.logger, conversationID)))
	}
	if cm.counter == nil {
		cm.counter = utils.DefaultCounter()
	}

	if err := cm.reload(); err != nil {
		return nil, err
	}
	return cm, nil
}

// reload rebuilds the view and the monitor state from the whole log.
func (cm *ContextManager) reload() error {
	events, err := cm.log.All()
	if err != nil {
		return fmt.Errorf("failed to read log for %s: %w", cm.convID, err)
	}
	cm.monitor.Replay(events)
	cm.view = view.FromEvents(events, view.WithContext(cm.ctx()))
	cm.reportSize()
	return nil
}

func (cm *ContextManager) ctx() context.Context {
	return logx.WithConversationID(context.Background(), cm.convID)
}

// ConversationID returns the conversation this manager serves.
func (cm *ContextManager) ConversationID() string {
	return cm.convID
}

// Log returns the underlying event log.
func (cm *ContextManager) Log() *eventlog.Log {
	return cm.log
}

// Condenser returns the configured strategy.
func (cm *ContextManager) Condenser() condenser.Condenser {
	return cm.condenser
}

// Append records ev in the log, feeds it to the monitor and folds it into the view. The
// stored event, with its assigned position, is returned. Protocol violations are reported
// but never rejected.
func (cm *ContextManager) Append(ev *event.Event) (*event.Event, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.appendLocked(ev)
}

func (cm *ContextManager) appendLocked(ev *event.Event) (*event.Event, error) {
	stored, err := cm.log.Append(ev)
	if err != nil {
		return nil, err
	}

	if cm.writer != nil {
		if werr := cm.writer.WriteEvent(stored); werr != nil {
			cm.logger.Warn("[%s] failed to mirror event %s: %v", cm.convID, stored.ID, werr)
		}
	}

	cm.monitor.Observe(stored)
	cm.view = view.Update(cm.view, []*event.Event{stored})
	cm.reportSize()
	return stored, nil
}

func (cm *ContextManager) reportSize() {
	if cm.recorder != nil {
		cm.recorder.SetViewSize(cm.convID, cm.view.Len())
	}
}

// View returns the current view of the log, without any transforming stages applied.
func (cm *ContextManager) View() *view.View {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.view
}

// RequestCondensation appends a CondensationRequest. Condensers that handle requests
// condense on the next Prepare.
func (cm *ContextManager) RequestCondensation(reason string) (*event.Event, error) {
	ev, err := event.NewCondensationRequest(reason)
	if err != nil {
		return nil, err
	}
	return cm.Append(ev)
}

// Prepare returns the view to send to the model. When the condenser yields a condensation
// it is appended to the log before the view is returned. Condensation failures and
// cancellations leave the log untouched and return the current view.
func (cm *ContextManager) Prepare(ctx context.Context) (*view.View, error) {
	if logx.ConversationID(ctx) == "unknown" {
		ctx = logx.WithConversationID(ctx, cm.convID)
	}

	cm.mu.Lock()
	current := cm.view
	cm.mu.Unlock()

	opts := []condenser.Option{condenser.WithLogger(cm.logger)}
	if cm.recorder != nil {
		opts = append(opts, condenser.WithRecorder(cm.recorder))
	}
	out := condenser.Condense(ctx, cm.condenser, current, opts...)
	if !out.Condensed() {
		return cm.transformed(out.View, current), nil
	}

	ev, err := event.NewCondensation(*out.Condensation)
	if err != nil {
		return nil, fmt.Errorf("invalid condensation from %s: %w", cm.condenser.Name(), err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, err := cm.appendLocked(ev); err != nil {
		return nil, fmt.Errorf("failed to record condensation: %w", err)
	}
	cm.logger.Info("[%s] %s forgot %d events, view now %d events",
		cm.convID, cm.condenser.Name(), len(out.Condensation.ForgottenEventIDs), cm.view.Len())
	return cm.applyTransform(cm.view), nil
}

// transformed returns the view Condense handed back. When Condense declined outright the
// transforming stages have not run yet, so they are applied here.
func (cm *ContextManager) transformed(out, current *view.View) *view.View {
	if out != current {
		return out
	}
	return cm.applyTransform(out)
}

func (cm *ContextManager) applyTransform(v *view.View) *view.View {
	if t, ok := cm.condenser.(condenser.ViewTransformer); ok {
		return t.Transform(v)
	}
	return v
}

// Violations returns every protocol violation observed so far.
func (cm *ContextManager) Violations() []compliance.Violation {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.monitor.Violations()
}

// CountTokens estimates the token size of the current view.
func (cm *ContextManager) CountTokens() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.countTokensLocked()
}

func (cm *ContextManager) countTokensLocked() int {
	total := 0
	for _, ev := range cm.view.Events() {
		total += cm.counter.CountTokens(ev.Text())
	}
	return total
}

// GetContextSummary returns a brief summary of the context state.
func (cm *ContextManager) GetContextSummary() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.log.Len() == 0 {
		return "Empty context"
	}

	summary := fmt.Sprintf("%d events in log, %d in view, ~%d tokens",
		cm.log.Len(), cm.view.Len(), cm.countTokensLocked())
	if _, ok := cm.view.Summary(); ok {
		summary += ", summarized"
	}
	if n := len(cm.monitor.Violations()); n > 0 {
		summary += fmt.Sprintf(", %d violations", n)
	}
	return summary
}
