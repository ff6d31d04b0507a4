package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		externalCallLatencyMs,
		aiPromptTokens,
	)
}

var (
	externalCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_external_call_latency_ms",
			Help:    "Latency of calls to external collaborators in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 15000},
		},
		[]string{"collaborator", "success"},
	)

	aiPromptTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_prompt_tokens_total",
			Help: "Sum of prompt tokens sent per provider/model.",
		},
		[]string{"provider", "model"},
	)
)

func ObserveExternalCall(collaborator string, d time.Duration, success bool) {
	externalCallLatencyMs.WithLabelValues(norm(collaborator), strconv.FormatBool(success)).
		Observe(float64(d.Milliseconds()))
}

func AddPromptTokens(provider, model string, n int) {
	aiPromptTokens.WithLabelValues(norm(provider), norm(model)).Add(float64(n))
}
