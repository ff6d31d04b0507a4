package repository

import (
	"context"
	"time"

	"thought-pipeline/internal/domain/model"
)

type ProcessingItemRepository interface {
	// CreateOrGetPending stores item unless its (thought, stage) pair already has a
	// non-terminal or completed item, in which case that item is returned and created is false.
	CreateOrGetPending(ctx context.Context, tx Tx, item *model.ProcessingItem) (stored *model.ProcessingItem, created bool, err error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.ProcessingItem, error)
	ListByThought(ctx context.Context, tx Tx, thoughtID string) ([]*model.ProcessingItem, error)

	// ClaimNext atomically picks the oldest pending item of stage whose AvailableAt has
	// passed and marks it processing. Returns domain.ErrNotFound when nothing is ready.
	ClaimNext(ctx context.Context, stage model.Stage, now time.Time) (*model.ProcessingItem, error)

	// Transition persists the mutable fields of item only if the stored status still
	// equals expected. Returns domain.ErrStaleTransition otherwise.
	Transition(ctx context.Context, tx Tx, item *model.ProcessingItem, expected model.ItemStatus) error

	// ListStale returns processing items not updated since olderThan.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.ProcessingItem, error)

	Summary(ctx context.Context, ownerID string) (*model.StatusSummary, error)
	CountByStageStatus(ctx context.Context) (map[model.Stage]map[model.ItemStatus]int, error)
}
