package usecase

import (
	"context"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

// StatusStore is the single admission point and state machine for processing items.
// Transition methods never mutate their argument; they return the stored result.
type StatusStore interface {
	CreateOrGetPending(ctx context.Context, tx repository.Tx, thoughtID, ownerID string, stage model.Stage, payload []byte) (item *model.ProcessingItem, created bool, err error)
	// ClaimNext moves the next ready item of stage to processing. It is the only way
	// into processing. Returns domain.ErrNotFound when nothing is ready.
	ClaimNext(ctx context.Context, stage model.Stage) (*model.ProcessingItem, error)
	MarkCompleted(ctx context.Context, tx repository.Tx, item *model.ProcessingItem, result string) (*model.ProcessingItem, error)
	MarkFailed(ctx context.Context, tx repository.Tx, item *model.ProcessingItem, cause error) (*model.ProcessingItem, error)
	Summary(ctx context.Context, ownerID string) (*model.StatusSummary, error)
	ListByThought(ctx context.Context, thoughtID string) ([]*model.ProcessingItem, error)
}
