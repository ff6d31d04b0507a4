package adapter

import (
	"context"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

// JobQueue admits stage work. Passing a tx makes the enqueue part of the caller's
// transaction; re-enqueueing an admitted (thought, stage) returns the existing item.
type JobQueue interface {
	Enqueue(ctx context.Context, tx repository.Tx, stage model.Stage, thoughtID, ownerID string, payload any) (item *model.ProcessingItem, created bool, err error)
}

// Job is one delivery of a processing item to a stage handler.
type Job interface {
	Item() *model.ProcessingItem
	Decode(v any) error
	// Complete marks the item completed inside tx. Handlers that return nil without
	// calling Complete get a plain "done" completion.
	Complete(ctx context.Context, tx repository.Tx, result string) error
}

// JobHandler processes one job. A nil return completes it; any error is recorded
// against the item and, budget permitting, redelivered.
type JobHandler interface {
	Handle(ctx context.Context, job Job) error
}

type JobHandlerFunc func(ctx context.Context, job Job) error

func (f JobHandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }
