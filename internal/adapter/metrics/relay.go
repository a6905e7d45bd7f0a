package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics holds Prometheus metrics for the cross-instance event relay.
type RelayMetrics struct {
	Published        *prometheus.CounterVec
	Received         prometheus.Counter
	LocalFallbacks   prometheus.Counter
	SubscribeRetries prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on the given registry.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Events published to the relay channel, by result.",
		}, []string{"result"}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "received_total",
			Help:      "Events received from the relay channel.",
		}),
		LocalFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "local_fallbacks_total",
			Help:      "Events delivered to local viewers only because publishing failed.",
		}),
		SubscribeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "subscribe_retries_total",
			Help:      "Failed attempts to subscribe to the relay channel.",
		}),
	}

	reg.MustRegister(m.Published, m.Received, m.LocalFallbacks, m.SubscribeRetries)
	return m
}
