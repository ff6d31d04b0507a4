package usecase

import (
	"context"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
)

// Notifier is best-effort: implementations log and swallow delivery errors.
type Notifier interface {
	Send(ctx context.Context, ownerID, thoughtID string, eventType adapter.EventType, stage model.Stage, data map[string]any)
	StageFailed(ctx context.Context, item *model.ProcessingItem)
}
