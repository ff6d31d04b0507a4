package repository

import (
	"context"
	"time"

	"thought-pipeline/internal/domain/model"
)

// ThoughtRepository exposes only the columns the pipeline writes. Every update is keyed by
// thought id and touches the whole stage result at once.
type ThoughtRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Thought) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Thought, error)
	SetTranscription(ctx context.Context, tx Tx, thoughtID, text string) error
	ApplyEnrichment(ctx context.Context, tx Tx, thoughtID string, e model.Enrichment) error
	SetEvent(ctx context.Context, tx Tx, thoughtID string, ev model.EventRef, reminderAt *time.Time) error
	ListRecentProcessed(ctx context.Context, tx Tx, ownerID string, limit int) ([]*model.Thought, error)
}
