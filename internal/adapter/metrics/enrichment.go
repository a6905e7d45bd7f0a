package metrics

import "github.com/prometheus/client_golang/prometheus"

// EnrichmentMetrics holds Prometheus metrics for sentiment enrichment.
type EnrichmentMetrics struct {
	Tasks            *prometheus.CounterVec
	ClassifyDuration prometheus.Histogram
	InFlight         prometheus.Gauge
}

// NewEnrichmentMetrics creates and registers enrichment metrics on the given registry.
func NewEnrichmentMetrics(reg prometheus.Registerer) *EnrichmentMetrics {
	m := &EnrichmentMetrics{
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "tasks_total",
			Help:      "Finished enrichment tasks, by result (classified, fallback, skipped, error).",
		}, []string{"result"}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "classify_duration_seconds",
			Help:      "Duration of classifier calls in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "enrichment",
			Name:      "in_flight",
			Help:      "Number of enrichment tasks currently running.",
		}),
	}

	reg.MustRegister(m.Tasks, m.ClassifyDuration, m.InFlight)
	return m
}
