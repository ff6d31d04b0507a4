package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/domain/ports/usecase"
)

// Compile-time check
var _ usecase.StatusStore = (*StatusUseCase)(nil)

type StatusUseCase struct {
	items       repository.ProcessingItemRepository
	maxAttempts int
	backoff     Backoff
	now         func() time.Time
	log         *zerolog.Logger
}

func NewStatusUseCase(items repository.ProcessingItemRepository, maxAttempts int, backoff Backoff, logger *zerolog.Logger) *StatusUseCase {
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}
	l := logger.With().Str("component", "status").Logger()
	return &StatusUseCase{items: items, maxAttempts: maxAttempts, backoff: backoff, now: time.Now, log: &l}
}

func (s *StatusUseCase) CreateOrGetPending(ctx context.Context, tx repository.Tx, thoughtID, ownerID string, stage model.Stage, payload []byte) (*model.ProcessingItem, bool, error) {
	item, err := model.NewProcessingItem(thoughtID, ownerID, stage, payload, s.maxAttempts)
	if err != nil {
		return nil, false, err
	}
	stored, created, err := s.items.CreateOrGetPending(ctx, tx, item)
	if err != nil {
		return nil, false, fmt.Errorf("admit %s/%s: %w", thoughtID, stage, err)
	}
	if !created {
		s.log.Debug().Str("thought_id", thoughtID).Str("stage", string(stage)).
			Str("item_id", stored.ID).Str("status", string(stored.Status)).Msg("already admitted")
	}
	return stored, created, nil
}

func (s *StatusUseCase) ClaimNext(ctx context.Context, stage model.Stage) (*model.ProcessingItem, error) {
	return s.items.ClaimNext(ctx, stage, s.now())
}

func (s *StatusUseCase) MarkCompleted(ctx context.Context, tx repository.Tx, item *model.ProcessingItem, result string) (*model.ProcessingItem, error) {
	next := *item
	if err := next.Complete(result, s.now()); err != nil {
		return nil, err
	}
	if err := s.items.Transition(ctx, tx, &next, model.ItemStatusProcessing); err != nil {
		return nil, err
	}
	return &next, nil
}

// MarkFailed records one failed attempt. Retryable causes with budget left go back to
// pending after a backoff; everything else is terminal. Deferred causes go back to
// pending without using an attempt.
func (s *StatusUseCase) MarkFailed(ctx context.Context, tx repository.Tx, item *model.ProcessingItem, cause error) (*model.ProcessingItem, error) {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	next := *item
	if after, ok := domain.DeferredFor(cause); ok {
		if err := next.Defer(cause.Error(), after, s.now()); err != nil {
			return nil, err
		}
	} else if err := next.Fail(cause.Error(), domain.IsRetryable(cause), s.backoff.Delay(next.Attempts+1), s.now()); err != nil {
		return nil, err
	}
	if err := s.items.Transition(ctx, tx, &next, model.ItemStatusProcessing); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *StatusUseCase) Summary(ctx context.Context, ownerID string) (*model.StatusSummary, error) {
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return s.items.Summary(ctx, ownerID)
}

func (s *StatusUseCase) ListByThought(ctx context.Context, thoughtID string) ([]*model.ProcessingItem, error) {
	return s.items.ListByThought(ctx, repository.NoTX, thoughtID)
}

// ErrClaimExpired is the failure recorded for items whose worker vanished mid-job.
var ErrClaimExpired = errors.New("claim expired: worker did not finish")

// ReclaimStale fails every processing item untouched for longer than timeout, which
// puts it back in the queue while attempts remain. Returns the reclaimed items.
func (s *StatusUseCase) ReclaimStale(ctx context.Context, timeout time.Duration, limit int) ([]*model.ProcessingItem, error) {
	stale, err := s.items.ListStale(ctx, s.now().Add(-timeout), limit)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ProcessingItem, 0, len(stale))
	for _, it := range stale {
		next, err := s.MarkFailed(ctx, repository.NoTX, it, ErrClaimExpired)
		if errors.Is(err, domain.ErrStaleTransition) {
			continue // finished meanwhile
		}
		if err != nil {
			return out, err
		}
		out = append(out, next)
	}
	return out, nil
}

// CountByStageStatus feeds the queue depth gauges.
func (s *StatusUseCase) CountByStageStatus(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error) {
	return s.items.CountByStageStatus(ctx)
}
