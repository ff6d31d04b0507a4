package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
)

type CaptureInput struct {
	ThoughtID string
	OwnerID   string
	Content   string
	AudioRef  *string
}

// CaptureUseCase is the pipeline producer: it stores a new thought and admits its first
// stage in the same transaction.
type CaptureUseCase struct {
	thoughts repository.ThoughtRepository
	items    repository.ProcessingItemRepository
	tm       repository.TransactionManager
	next     Transitions
	log      *zerolog.Logger
}

func NewCaptureUseCase(
	thoughts repository.ThoughtRepository,
	items repository.ProcessingItemRepository,
	tm repository.TransactionManager,
	queue adapter.JobQueue,
	logger *zerolog.Logger,
) *CaptureUseCase {
	l := logger.With().Str("component", "capture").Logger()
	return &CaptureUseCase{thoughts: thoughts, items: items, tm: tm, next: NewTransitions(queue), log: &l}
}

// Capture enqueues transcribe when the thought carries audio, enrich otherwise.
func (uc *CaptureUseCase) Capture(ctx context.Context, in CaptureInput) (*model.Thought, *model.ProcessingItem, error) {
	t, err := model.NewThought(in.ThoughtID, in.OwnerID, in.Content, in.AudioRef)
	if err != nil {
		return nil, nil, err
	}

	var item *model.ProcessingItem
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.thoughts.Save(ctx, tx, t); err != nil {
			return fmt.Errorf("save thought: %w", err)
		}
		item, err = uc.firstStage(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	uc.log.Info().
		Str("thought_id", t.ID).
		Str("owner_id", t.OwnerID).
		Str("stage", string(item.Stage)).
		Str("item_id", item.ID).
		Msg("thought captured")
	return t, item, nil
}

// Reprocess re-admits the stage a thought is stuck at. Completed stages are not re-run;
// a failed lineage gets a fresh item.
func (uc *CaptureUseCase) Reprocess(ctx context.Context, ownerID, thoughtID string) (*model.ProcessingItem, error) {
	t, err := uc.thoughts.FindByID(ctx, repository.NoTX, thoughtID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	var item *model.ProcessingItem
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		item, err = uc.stuckStage(ctx, tx, t)
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().
		Str("thought_id", t.ID).
		Str("stage", string(item.Stage)).
		Str("item_id", item.ID).
		Str("status", string(item.Status)).
		Msg("thought reprocessed")
	return item, nil
}

// stuckStage picks calendar when enrichment finished but the latest calendar lineage
// failed, the first stage otherwise.
func (uc *CaptureUseCase) stuckStage(ctx context.Context, tx repository.Tx, t *model.Thought) (*model.ProcessingItem, error) {
	items, err := uc.items.ListByThought(ctx, tx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	enrich, calendar := latest(items, model.StageEnrich), latest(items, model.StageCalendar)
	if enrich != nil && enrich.Status == model.ItemStatusCompleted &&
		calendar != nil && calendar.Status == model.ItemStatusFailed {
		return uc.next.EnqueueCalendar(ctx, tx, t.ID, t.OwnerID, t.Text())
	}
	return uc.firstStage(ctx, tx, t)
}

func (uc *CaptureUseCase) firstStage(ctx context.Context, tx repository.Tx, t *model.Thought) (*model.ProcessingItem, error) {
	if t.HasAudio() && t.TranscribedText == nil {
		return uc.next.EnqueueTranscribe(ctx, tx, t.ID, t.OwnerID, *t.AudioRef)
	}
	text := t.Text()
	if text == "" {
		return nil, domain.ErrNoContent
	}
	return uc.next.EnqueueEnrich(ctx, tx, t.ID, t.OwnerID, text)
}

// latest returns the newest item of stage, nil when there is none.
func latest(items []*model.ProcessingItem, stage model.Stage) *model.ProcessingItem {
	var out *model.ProcessingItem
	for _, it := range items {
		if it.Stage != stage {
			continue
		}
		if out == nil || !it.CreatedAt.Before(out.CreatedAt) {
			out = it
		}
	}
	return out
}
