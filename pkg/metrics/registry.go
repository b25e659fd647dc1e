// Package metrics provides the prometheus registry for condensation, compliance and
// summarization metrics, and services for querying them back.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "contextcore"

// Outcome labels for condensation attempts.
const (
	OutcomeCondensed = "condensed"
	OutcomeSkipped   = "skipped"
	OutcomeNoSafeCut = "no_safe_cut"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Registry owns an isolated prometheus registry. It is safe for concurrent use and can be
// shared across conversations.
type Registry struct {
	reg *prometheus.Registry

	condensations   *prometheus.CounterVec
	forgottenEvents *prometheus.CounterVec
	violations      *prometheus.CounterVec
	viewSize        *prometheus.GaugeVec
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry whose metric names are prefixed with namespace.
func NewRegistry(namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		condensations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "condensations_total",
				Help:      "Condensation attempts by condenser and outcome",
			},
			[]string{"condenser", "outcome"},
		),
		forgottenEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forgotten_events_total",
				Help:      "Events removed from the view by condensation",
			},
			[]string{"condenser"},
		),
		violations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compliance_violations_total",
				Help:      "Compliance violations by property",
			},
			[]string{"property"},
		),
		viewSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "view_events",
				Help:      "Number of events in the current view",
			},
			[]string{"conversation_id"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Summarization requests by model and status",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Tokens used by summarization requests",
			},
			[]string{"model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of summarization requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model"},
		),
	}
}

// Gatherer exposes the underlying registry, e.g. for promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveCondensation records one condensation attempt.
func (r *Registry) ObserveCondensation(condenser, outcome string, forgotten int) {
	r.condensations.WithLabelValues(condenser, outcome).Inc()
	if forgotten > 0 {
		r.forgottenEvents.WithLabelValues(condenser).Add(float64(forgotten))
	}
}

// IncViolation counts one compliance violation.
func (r *Registry) IncViolation(property string) {
	r.violations.WithLabelValues(property).Inc()
}

// SetViewSize records the current view length for a conversation.
func (r *Registry) SetViewSize(conversationID string, n int) {
	r.viewSize.WithLabelValues(conversationID).Set(float64(n))
}

// ObserveRequest records metrics for a completed summarization request.
func (r *Registry) ObserveRequest(
	model string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	r.requestsTotal.WithLabelValues(model, status, errorType).Inc()

	if success {
		r.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		r.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}

	r.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// Totals sums every counter and gauge family by name. Histograms contribute their sample count.
func (r *Registry) Totals() (map[string]float64, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	totals := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sum += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				sum += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				sum += float64(m.GetHistogram().GetSampleCount())
			default:
			}
		}
		totals[mf.GetName()] = sum
	}
	return totals, nil
}

// WriteText writes every gathered family in the prometheus text exposition format, sorted by name.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
