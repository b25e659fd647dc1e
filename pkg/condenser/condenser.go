// Package condenser decides when a view has outgrown its budget and produces the
// Condensation that shrinks it.
//
// Condensation is best-effort: Condense never returns an error. Any failure, including a
// missing safe cut or a cancelled summarization call, leaves the view untouched.
package condenser

import (
	"context"
	"errors"
	"fmt"

	"contextcore/pkg/event"
	"contextcore/pkg/logx"
	"contextcore/pkg/metrics"
	"contextcore/pkg/view"
)

// ErrNoSafeCut is returned when no manipulation index allows forgetting anything.
var ErrNoSafeCut = view.ErrNoSafeCut

// Condenser is implemented only by the strategies in this package.
type Condenser interface {
	// ShouldCondense reports whether v needs condensing.
	ShouldCondense(v *view.View) bool
	// GetCondensation computes the condensation for v. A nil condensation with a nil error
	// means there is nothing to do.
	GetCondensation(ctx context.Context, v *view.View) (*event.Condensation, error)
	// Name identifies the strategy in logs and metrics.
	Name() string

	condenser()
}

// ViewTransformer is implemented by stages that rewrite the view without touching the log.
type ViewTransformer interface {
	Transform(v *view.View) *view.View
}

// Recorder receives one observation per condensation attempt. *metrics.Registry
// satisfies it.
type Recorder interface {
	ObserveCondensation(condenser, outcome string, forgotten int)
}

// Outcome is the result of Condense.
type Outcome struct {
	// View is the view to send. It is the input view when nothing happened, a transformed
	// view when a pipeline stage rewrote it, or a preview with Condensation applied.
	View *view.View
	// Condensation is set when the caller should append it to the log.
	Condensation *event.Condensation
	// Err explains why condensation was skipped. It is informational only.
	Err error
}

// Condensed reports whether the outcome carries a condensation.
func (o Outcome) Condensed() bool {
	return o.Condensation != nil
}

type options struct {
	recorder Recorder
	logger   *logx.Logger
}

// Option configures Condense.
type Option func(*options)

// WithRecorder records every attempt.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithLogger overrides the logger used for skipped attempts.
func WithLogger(l *logx.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

//nolint:gochecknoglobals // package logger
var defaultLogger = logx.NewLogger("condenser")

// runner is implemented by condensers that may also rewrite the view. attempted reports
// whether any stage asked for a condensation, as opposed to only transforming the view.
type runner interface {
	run(ctx context.Context, v *view.View) (next *view.View, cond *event.Condensation, attempted bool, err error)
}

// Condense runs c against v. When c declines, the input view is returned unchanged. When
// c fails for any reason the failure is logged and recorded, and the input view is
// returned unchanged, exactly as if condensation had never been attempted.
func Condense(ctx context.Context, c Condenser, v *view.View, opts ...Option) Outcome {
	o := options{logger: defaultLogger}
	for _, opt := range opts {
		opt(&o)
	}

	observe := func(outcome string, forgotten int) {
		if o.recorder != nil {
			o.recorder.ObserveCondensation(c.Name(), outcome, forgotten)
		}
	}

	if !c.ShouldCondense(v) {
		return Outcome{View: v}
	}

	var (
		current   = v
		cond      *event.Condensation
		attempted = true
		err       error
	)
	if r, ok := c.(runner); ok {
		current, cond, attempted, err = r.run(ctx, v)
	} else {
		cond, err = c.GetCondensation(ctx, v)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrNoSafeCut):
			logx.Debug(ctx, "condenser", "%s: skipping turn: %v", c.Name(), err)
			observe(metrics.OutcomeNoSafeCut, 0)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			o.logger.Info("%s: condensation cancelled (conversation %s)", c.Name(), logx.ConversationID(ctx))
			observe(metrics.OutcomeCancelled, 0)
		default:
			o.logger.Warn("%s: condensation failed, keeping view unchanged: %v", c.Name(), err)
			observe(metrics.OutcomeFailed, 0)
		}
		return Outcome{View: v, Err: err}
	}

	if cond == nil {
		if attempted {
			observe(metrics.OutcomeSkipped, 0)
		}
		return Outcome{View: current}
	}

	preview, err := current.Apply(*cond)
	if err != nil {
		o.logger.Warn("%s: produced an invalid condensation, keeping view unchanged: %v", c.Name(), err)
		observe(metrics.OutcomeFailed, 0)
		return Outcome{View: v, Err: err}
	}

	logx.Debug(ctx, "condenser", "%s: forgetting %d events (view %d -> %d)",
		c.Name(), len(cond.ForgottenEventIDs), v.Len(), preview.Len())
	observe(metrics.OutcomeCondensed, len(cond.ForgottenEventIDs))
	return Outcome{View: preview, Condensation: cond}
}

// Describe renders a one-line description of a condenser tree.
func Describe(c Condenser) string {
	switch t := c.(type) {
	case *NoOp:
		return "noop"
	case *Force:
		return fmt.Sprintf("force(%s)", Describe(t.inner))
	case *Rolling:
		return fmt.Sprintf("rolling(max_size=%d, keep_first=%d)", t.window.MaxSize, t.window.KeepFirst)
	case *LLMSummarizing:
		return fmt.Sprintf("llm_summarizing(max_size=%d, keep_first=%d, model=%s)",
			t.window.MaxSize, t.window.KeepFirst, t.client.GetModelName())
	case *TokenBudget:
		return fmt.Sprintf("token_budget(max_tokens=%d, keep_first=%d)", t.maxTokens, t.keepFirst)
	case *ObservationMasking:
		return fmt.Sprintf("observation_masking(attention_window=%d)", t.attentionWindow)
	case *Pipeline:
		s := "pipeline["
		for i, stage := range t.stages {
			if i > 0 {
				s += ", "
			}
			s += Describe(stage)
		}
		return s + "]"
	default:
		panic(fmt.Sprintf("condenser: unknown type %T", c))
	}
}

// NoOp never condenses.
type NoOp struct{}

// NewNoOp returns a condenser that leaves every view alone.
func NewNoOp() *NoOp { return &NoOp{} }

func (*NoOp) ShouldCondense(*view.View) bool { return false }

func (*NoOp) GetCondensation(context.Context, *view.View) (*event.Condensation, error) {
	return nil, nil
}

func (*NoOp) Name() string { return "noop" }

func (*NoOp) condenser() {}
