// Package metrics exposes Prometheus instrumentation for discovery runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/company-finder/internal/resilience"
)

const namespace = "company_finder"

// Metrics holds the collectors for one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	StageDuration  *prometheus.HistogramVec
	StageFailures  *prometheus.CounterVec
	StageItems     *prometheus.CounterVec
	FetchOutcomes  *prometheus.CounterVec
	EnrichOutcomes *prometheus.CounterVec
	Runs           *prometheus.CounterVec
}

// New registers the collectors on reg. Passing prometheus.NewRegistry() keeps
// tests isolated from the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that failed the run",
		}, []string{"stage"}),
		StageItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Items produced by each pipeline stage",
		}, []string{"stage"}),
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_outcomes_total",
			Help:      "Bounded fetch task results by batch and outcome",
		}, []string{"batch", "outcome"}),
		EnrichOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_outcomes_total",
			Help:      "Per-record enrichment results by provider",
		}, []string{"provider", "outcome"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished discovery runs by final status",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.StageDuration,
		m.StageFailures,
		m.StageItems,
		m.FetchOutcomes,
		m.EnrichOutcomes,
		m.Runs,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records a stage duration and the number of items it produced.
func (m *Metrics) ObserveStage(stage string, d time.Duration, items int) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.StageItems.WithLabelValues(stage).Add(float64(items))
}

// StageFailed counts a stage that ended a run.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// FetchOutcome counts one bounded fetch result. The outcome label is
// resilience.Classify(err).
func (m *Metrics) FetchOutcome(batch string, err error) {
	if m == nil {
		return
	}
	m.FetchOutcomes.WithLabelValues(batch, resilience.Classify(err)).Inc()
}

// EnrichOutcome counts one per-record enrichment result.
func (m *Metrics) EnrichOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	m.EnrichOutcomes.WithLabelValues(provider, outcome).Inc()
}

// RunFinished counts a run by its final status.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
}
