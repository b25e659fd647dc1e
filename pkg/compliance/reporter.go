package compliance

import (
	"sync/atomic"

	"contextcore/pkg/logx"
)

// Reporter receives violations as they are found. Implementations must not block.
type Reporter interface {
	Report(v Violation)
}

// LogReporter writes violations to a logger.
type LogReporter struct {
	logger         *logx.Logger
	conversationID string
}

// NewLogReporter logs to logger, or to a "compliance" logger when nil.
func NewLogReporter(logger *logx.Logger, conversationID string) *LogReporter {
	if logger == nil {
		logger = logx.NewLogger("compliance")
	}
	return &LogReporter{logger: logger, conversationID: conversationID}
}

// Report implements Reporter.
func (r *LogReporter) Report(v Violation) {
	if r.conversationID != "" {
		r.logger.Warn("[%s] %s", r.conversationID, v)
		return
	}
	r.logger.Warn("%s", v)
}

// ViolationCounter is satisfied by *metrics.Registry.
type ViolationCounter interface {
	IncViolation(property string)
}

// MetricsReporter counts violations by property.
type MetricsReporter struct {
	counter ViolationCounter
}

// NewMetricsReporter creates a reporter backed by counter.
func NewMetricsReporter(counter ViolationCounter) *MetricsReporter {
	return &MetricsReporter{counter: counter}
}

// Report implements Reporter.
func (r *MetricsReporter) Report(v Violation) {
	r.counter.IncViolation(v.Property)
}

// ChannelReporter streams violations to a channel. When the channel is full the violation
// is dropped and counted rather than blocking the agent loop.
type ChannelReporter struct {
	ch      chan<- Violation
	dropped atomic.Int64
}

// NewChannelReporter sends to ch.
func NewChannelReporter(ch chan<- Violation) *ChannelReporter {
	return &ChannelReporter{ch: ch}
}

// Report implements Reporter.
func (r *ChannelReporter) Report(v Violation) {
	select {
	case r.ch <- v:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many violations did not fit in the channel.
func (r *ChannelReporter) Dropped() int64 {
	return r.dropped.Load()
}
