package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// CondensationStats represents aggregated condensation metrics for one condenser.
type CondensationStats struct {
	Condenser       string  `json:"condenser"`
	Condensed       float64 `json:"condensed"`
	Failed          float64 `json:"failed"`
	ForgottenEvents float64 `json:"forgotten_events"`
}

// QueryService queries a Prometheus server that scrapes this module's metrics.
type QueryService struct {
	queryAPI  v1.API
	namespace string
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL, namespace string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &QueryService{
		queryAPI:  v1.NewAPI(client),
		namespace: namespace,
	}, nil
}

// ViolationCounts returns total compliance violations keyed by property.
func (q *QueryService) ViolationCounts(ctx context.Context) (map[string]float64, error) {
	query := fmt.Sprintf(`sum by (property) (%s_compliance_violations_total)`, q.namespace)
	return q.byLabel(ctx, query, "property")
}

// CondensationStats returns per-condenser totals.
func (q *QueryService) CondensationStats(ctx context.Context) (map[string]*CondensationStats, error) {
	result := make(map[string]*CondensationStats)
	get := func(name string) *CondensationStats {
		if s, ok := result[name]; ok {
			return s
		}
		s := &CondensationStats{Condenser: name}
		result[name] = s
		return s
	}

	condensed, err := q.byLabel(ctx,
		fmt.Sprintf(`sum by (condenser) (%s_condensations_total{outcome=%q})`, q.namespace, OutcomeCondensed), "condenser")
	if err != nil {
		return nil, err
	}
	for name, v := range condensed {
		get(name).Condensed = v
	}

	failed, err := q.byLabel(ctx,
		fmt.Sprintf(`sum by (condenser) (%s_condensations_total{outcome=%q})`, q.namespace, OutcomeFailed), "condenser")
	if err != nil {
		return nil, err
	}
	for name, v := range failed {
		get(name).Failed = v
	}

	forgotten, err := q.byLabel(ctx,
		fmt.Sprintf(`sum by (condenser) (%s_forgotten_events_total)`, q.namespace), "condenser")
	if err != nil {
		return nil, err
	}
	for name, v := range forgotten {
		get(name).ForgottenEvents = v
	}

	return result, nil
}

func (q *QueryService) byLabel(ctx context.Context, query, label string) (map[string]float64, error) {
	res, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", query, err)
	}

	out := make(map[string]float64)
	if vector, ok := res.(model.Vector); ok {
		for _, sample := range vector {
			out[string(sample.Metric[model.LabelName(label)])] = float64(sample.Value)
		}
	}
	return out, nil
}
