package metrics

import "github.com/prometheus/client_golang/prometheus"

// ClassifierMetrics holds Prometheus metrics for the text-generation client.
type ClassifierMetrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewClassifierMetrics creates and registers classifier metrics on the given registry.
func NewClassifierMetrics(reg prometheus.Registerer) *ClassifierMetrics {
	m := &ClassifierMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "requests_total",
			Help:      "Requests to the text-generation API, by operation and result.",
		}, []string{"operation", "result"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "request_duration_seconds",
			Help:      "Duration of text-generation API calls in seconds, by operation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Requests, m.RequestDuration)
	return m
}
