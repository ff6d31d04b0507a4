package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/infra/metrics"
)

type Counter interface {
	CountByStageStatus(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error)
}

var allStatuses = []model.ItemStatus{
	model.ItemStatusPending, model.ItemStatusProcessing, model.ItemStatusCompleted, model.ItemStatusFailed,
}

// DepthSampler publishes per stage and status item counts as gauges.
type DepthSampler struct {
	interval time.Duration
	counter  Counter
	log      *zerolog.Logger
}

func NewDepthSampler(interval time.Duration, counter Counter, logger *zerolog.Logger) *DepthSampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "DepthSampler").Logger()
	return &DepthSampler{interval: interval, counter: counter, log: &l}
}

func (w *DepthSampler) Run(ctx context.Context) error {
	// once on startup, then on every tick
	w.Sample(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Sample(ctx)
		}
	}
}

func (w *DepthSampler) Sample(ctx context.Context) {
	counts, err := w.counter.CountByStageStatus(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("queue depth sample failed")
		return
	}
	// zero-fill so drained queues drop back to 0
	for _, st := range model.Stages {
		for _, status := range allStatuses {
			metrics.SetItems(string(st), string(status), counts[st][status])
		}
	}
}
