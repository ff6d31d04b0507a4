package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(circuitBreakerState, circuitBreakerRejections) }

var (
	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state per collaborator (0=closed, 1=half-open, 2=open).",
		},
		[]string{"name"},
	)

	circuitBreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_rejections_total",
			Help: "Calls rejected because the breaker was open or the half-open quota was used.",
		},
		[]string{"name"},
	)
)

func SetBreakerState(name string, v float64) {
	circuitBreakerState.WithLabelValues(norm(name)).Set(v)
}

func IncBreakerRejection(name string) {
	circuitBreakerRejections.WithLabelValues(norm(name)).Inc()
}
