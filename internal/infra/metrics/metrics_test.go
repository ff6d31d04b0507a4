package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestIncJob_NormalizesLabels(t *testing.T) {
	before := testutil.ToFloat64(jobsProcessedTotal.WithLabelValues("enrich", "completed"))
	IncJob(" Enrich ", "COMPLETED")
	after := testutil.ToFloat64(jobsProcessedTotal.WithLabelValues("enrich", "completed"))
	assert.Equal(t, before+1, after)
}

func TestSetItems(t *testing.T) {
	SetItems("calendar", "pending", 4)
	assert.Equal(t, float64(4), testutil.ToFloat64(pipelineItems.WithLabelValues("calendar", "pending")))
	SetItems("calendar", "pending", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(pipelineItems.WithLabelValues("calendar", "pending")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("transcribe", 120*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(stageDuration), 1)
}

func TestSetDBPoolStats(t *testing.T) {
	SetDBPoolStats(10, 4, 6)
	assert.Equal(t, float64(4), testutil.ToFloat64(dbConnections.WithLabelValues("idle")))
	assert.Equal(t, float64(6), testutil.ToFloat64(dbConnections.WithLabelValues("in_use")))
}
