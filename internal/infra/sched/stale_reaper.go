package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/infra/metrics"
)

// Reclaimer returns abandoned processing items to the queue.
type Reclaimer interface {
	ReclaimStale(ctx context.Context, timeout time.Duration, limit int) ([]*model.ProcessingItem, error)
}

// Locker elects one instance per sweep. Satisfied by redis.RedisLocker.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

const reaperLockKey = "lock:pipeline:stale_reaper"

// StaleReaper periodically fails processing items whose worker stopped heartbeating,
// which re-queues them while attempts remain. A nil Locker runs the sweep on every instance.
type StaleReaper struct {
	interval time.Duration
	timeout  time.Duration
	batch    int
	uc       Reclaimer
	locker   Locker
	log      *zerolog.Logger
}

func NewStaleReaper(interval, timeout time.Duration, uc Reclaimer, locker Locker, logger *zerolog.Logger) *StaleReaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	l := logger.With().Str("component", "StaleReaper").Logger()
	return &StaleReaper{interval: interval, timeout: timeout, batch: 200, uc: uc, locker: locker, log: &l}
}

func (w *StaleReaper) Run(ctx context.Context) error {
	w.log.Info().Dur("timeout", w.timeout).Msg("Starting stale claim reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stale claim reaper")
			return ctx.Err()
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one reclaim pass and returns how many items were reclaimed.
func (w *StaleReaper) Sweep(ctx context.Context) int {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, reaperLockKey, w.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			return 0
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("reaper lock unavailable, skipping sweep")
			return 0
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), reaperLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("reaper unlock failed")
			}
		}()
	}

	items, err := w.uc.ReclaimStale(ctx, w.timeout, w.batch)
	for _, it := range items {
		metrics.IncStaleReclaimed()
		w.log.Warn().Str("item_id", it.ID).Str("stage", string(it.Stage)).
			Str("status", string(it.Status)).Int("attempts", it.Attempts).Msg("stale claim reclaimed")
	}
	if err != nil {
		w.log.Error().Err(err).Msg("stale claim sweep failed")
	}
	return len(items)
}
