package resilience

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "storefront"

// Outbound collectors, labelled by dependency name such as "phonepe".
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbound",
		Name:      "breaker_state",
		Help:      "Breaker position: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbound",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbound",
		Name:      "breaker_opened_total",
		Help:      "Times the breaker tripped open.",
	}, []string{"target"})
	RetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "outbound",
		Name:      "retries_total",
		Help:      "Retried outbound attempts.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, RetriesTotal)
}
