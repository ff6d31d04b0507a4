package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbConnections, settingsCacheTotal, buildInfo) }

var (
	dbConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_db_connections",
			Help: "Postgres pool connections by state (total, idle, in_use).",
		},
		[]string{"state"},
	)

	settingsCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_settings_cache_requests_total",
			Help: "Settings lookups served from Redis (hit) or the database (miss).",
		},
		[]string{"result"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Always 1; labels carry the running version and commit.",
		},
		[]string{"version", "commit"},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbConnections.WithLabelValues("total").Set(float64(total))
	dbConnections.WithLabelValues("idle").Set(float64(idle))
	dbConnections.WithLabelValues("in_use").Set(float64(inUse))
}

func IncSettingsCache(result string) {
	settingsCacheTotal.WithLabelValues(norm(result)).Inc()
}

func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}
