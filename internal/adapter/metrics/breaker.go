package metrics

import (
	"log/slog"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
)

// CircuitBreakerMetrics tracks circuit breakers, labelled by the component they protect.
type CircuitBreakerMetrics struct {
	State       *prometheus.GaugeVec
	Transitions *prometheus.CounterVec
}

// NewCircuitBreakerMetrics creates and registers circuit breaker metrics on the given registry.
func NewCircuitBreakerMetrics(reg prometheus.Registerer) *CircuitBreakerMetrics {
	m := &CircuitBreakerMetrics{
		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}, []string{"component"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state changes, by component and new state.",
		}, []string{"component", "state"}),
	}

	reg.MustRegister(m.State, m.Transitions)
	return m
}

// OnStateChanged returns a listener for circuitbreaker.Builder.OnStateChanged
// that logs the transition and updates the metrics for component.
func (m *CircuitBreakerMetrics) OnStateChanged(component string) func(circuitbreaker.StateChangedEvent) {
	return func(e circuitbreaker.StateChangedEvent) {
		slog.Warn("Circuit breaker state changed", "component", component, "from", e.OldState.String(), "to", e.NewState.String())
		if m == nil {
			return
		}
		m.Transitions.WithLabelValues(component, e.NewState.String()).Inc()
		m.State.WithLabelValues(component).Set(stateValue(e.NewState))
	}
}

func stateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}
