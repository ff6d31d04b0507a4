package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pipelineItems, notificationsTotal, staleReclaimed) }

var (
	pipelineItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_items",
			Help: "Processing items by stage and status, sampled periodically.",
		},
		[]string{"stage", "status"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_notifications_total",
			Help: "Notifications handed to sinks, labeled by sink and result.",
		},
		[]string{"sink", "result"},
	)

	staleReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_stale_claims_reclaimed_total",
			Help: "Processing items returned to the queue after their worker vanished.",
		},
	)
)

func SetItems(stage, status string, n int) {
	pipelineItems.WithLabelValues(norm(stage), norm(status)).Set(float64(n))
}

func IncNotification(sink, result string) {
	notificationsTotal.WithLabelValues(norm(sink), norm(result)).Inc()
}

func IncStaleReclaimed() { staleReclaimed.Inc() }
