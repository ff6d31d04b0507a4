package sched

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/infra/metrics"
)

type fakeReclaimer struct {
	calls       int
	ReclaimFunc func(ctx context.Context, timeout time.Duration, limit int) ([]*model.ProcessingItem, error)
}

func (f *fakeReclaimer) ReclaimStale(ctx context.Context, timeout time.Duration, limit int) ([]*model.ProcessingItem, error) {
	f.calls++
	return f.ReclaimFunc(ctx, timeout, limit)
}

type fakeLocker struct {
	TryLockFunc func(ctx context.Context, key string, ttl time.Duration) (string, error)
	unlocked    []string
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return f.TryLockFunc(ctx, key, ttl)
}

func (f *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	f.unlocked = append(f.unlocked, token)
	return nil
}

type counterFunc func(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error)

func (f counterFunc) CountByStageStatus(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error) {
	return f(ctx)
}

func TestStaleReaper_Sweep(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()
	reclaimed := []*model.ProcessingItem{
		{ID: "a", Stage: model.StageEnrich, Status: model.ItemStatusPending, Attempts: 1},
		{ID: "b", Stage: model.StageCalendar, Status: model.ItemStatusFailed, Attempts: 3},
	}

	t.Run("should reclaim with the configured timeout and hold the lock", func(t *testing.T) {
		// Arrange
		rc := &fakeReclaimer{ReclaimFunc: func(ctx context.Context, timeout time.Duration, limit int) ([]*model.ProcessingItem, error) {
			assert.Equal(t, 3*time.Minute, timeout)
			assert.Positive(t, limit)
			return reclaimed, nil
		}}
		lk := &fakeLocker{TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			assert.Equal(t, reaperLockKey, key)
			return "tok", nil
		}}
		w := NewStaleReaper(time.Minute, 3*time.Minute, rc, lk, &logger)

		// Act
		n := w.Sweep(ctx)

		// Assert
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"tok"}, lk.unlocked)
	})

	t.Run("should skip when another instance holds the lock", func(t *testing.T) {
		rc := &fakeReclaimer{}
		lk := &fakeLocker{TryLockFunc: func(ctx context.Context, key string, ttl time.Duration) (string, error) {
			return "", domain.ErrLockHeld
		}}
		w := NewStaleReaper(time.Minute, time.Minute, rc, lk, &logger)

		assert.Zero(t, w.Sweep(ctx))
		assert.Zero(t, rc.calls)
	})

	t.Run("should run unlocked without a locker and report partial progress", func(t *testing.T) {
		rc := &fakeReclaimer{ReclaimFunc: func(ctx context.Context, timeout time.Duration, limit int) ([]*model.ProcessingItem, error) {
			return reclaimed[:1], errors.New("db went away")
		}}
		w := NewStaleReaper(time.Minute, time.Minute, rc, nil, &logger)

		assert.Equal(t, 1, w.Sweep(ctx))
	})
}

func TestDepthSampler_Sample(t *testing.T) {
	logger := zerolog.Nop()
	metrics.MustRegister()

	t.Run("should publish counts and zero-fill missing pairs", func(t *testing.T) {
		// Arrange
		w := NewDepthSampler(time.Second, counterFunc(func(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error) {
			return map[model.Stage]map[model.ItemStatus]int{
				model.StageEnrich: {model.ItemStatusPending: 4},
			}, nil
		}), &logger)

		// Act
		w.Sample(context.Background())

		// Assert
		body := `
# HELP pipeline_items Processing items by stage and status, sampled periodically.
# TYPE pipeline_items gauge
pipeline_items{stage="calendar",status="completed"} 0
pipeline_items{stage="calendar",status="failed"} 0
pipeline_items{stage="calendar",status="pending"} 0
pipeline_items{stage="calendar",status="processing"} 0
pipeline_items{stage="enrich",status="completed"} 0
pipeline_items{stage="enrich",status="failed"} 0
pipeline_items{stage="enrich",status="pending"} 4
pipeline_items{stage="enrich",status="processing"} 0
pipeline_items{stage="transcribe",status="completed"} 0
pipeline_items{stage="transcribe",status="failed"} 0
pipeline_items{stage="transcribe",status="pending"} 0
pipeline_items{stage="transcribe",status="processing"} 0
`
		require.NoError(t, testutil.GatherAndCompare(prometheus.DefaultGatherer, strings.NewReader(body), "pipeline_items"))
	})
}
