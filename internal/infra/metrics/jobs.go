package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsProcessedTotal, stageDuration, jobsInFlight) }

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_processed_total",
			Help: "Total number of pipeline jobs processed, labeled by stage and outcome.",
		},
		[]string{"stage", "status"}, // 'completed', 'retried', 'failed'
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time of one stage handler invocation.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	jobsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_jobs_in_flight",
			Help: "Jobs currently held by a stage worker.",
		},
		[]string{"stage"},
	)
)

func IncJob(stage, status string) {
	jobsProcessedTotal.WithLabelValues(norm(stage), norm(status)).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(norm(stage)).Observe(d.Seconds())
}

func AddInFlight(stage string, delta float64) {
	jobsInFlight.WithLabelValues(norm(stage)).Add(delta)
}
