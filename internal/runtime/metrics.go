package runtime

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for document runs. One instance
// is shared between the orchestrator and the HTTP server.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	CohortDispatches *prometheus.CounterVec
	CohortRetries    prometheus.Counter
	GraphNodes       prometheus.Histogram
	LLMTokens        *prometheus.CounterVec
	LLMCost          prometheus.Counter
}

// NewMetrics registers the guidekg instruments on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guidekg",
			Name:      "runs_total",
			Help:      "Document processing runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guidekg",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of a document run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		CohortDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guidekg",
			Name:      "cohort_dispatches_total",
			Help:      "Cohort task dispatches by agent kind.",
		}, []string{"agent"}),
		CohortRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guidekg",
			Name:      "cohort_retries_total",
			Help:      "Cohort task retry attempts.",
		}),
		GraphNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guidekg",
			Name:      "graph_nodes",
			Help:      "Knowledge graph node count per run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		LLMTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guidekg",
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by model.",
		}, []string{"model"}),
		LLMCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guidekg",
			Name:      "llm_cost_dollars_total",
			Help:      "Estimated LLM spend in dollars.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal, m.RunDuration, m.CohortDispatches, m.CohortRetries,
		m.GraphNodes, m.LLMTokens, m.LLMCost,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
