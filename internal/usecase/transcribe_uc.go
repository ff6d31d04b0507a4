package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/domain/ports/usecase"
)

var _ adapter.JobHandler = (*TranscribeUseCase)(nil)

// TranscribeUseCase handles transcribe jobs: speech-to-text, persist the text, hand it to
// enrichment.
type TranscribeUseCase struct {
	stt      adapter.SpeechToText
	thoughts repository.ThoughtRepository
	tm       repository.TransactionManager
	next     Transitions
	notifier usecase.Notifier
	log      *zerolog.Logger
}

func NewTranscribeUseCase(
	stt adapter.SpeechToText,
	thoughts repository.ThoughtRepository,
	tm repository.TransactionManager,
	queue adapter.JobQueue,
	notifier usecase.Notifier,
	logger *zerolog.Logger,
) *TranscribeUseCase {
	l := logger.With().Str("component", "transcribe").Logger()
	return &TranscribeUseCase{stt: stt, thoughts: thoughts, tm: tm, next: NewTransitions(queue), notifier: notifier, log: &l}
}

func (uc *TranscribeUseCase) Handle(ctx context.Context, job adapter.Job) error {
	var p model.TranscribePayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	if p.AudioRef == "" {
		return domain.Permanent(fmt.Errorf("thought %s: %w", p.ThoughtID, domain.ErrNoContent))
	}

	res, err := uc.stt.Transcribe(ctx, p.AudioRef)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return domain.Permanent(fmt.Errorf("thought %s: empty transcription: %w", p.ThoughtID, domain.ErrNoContent))
	}

	var enrich *model.ProcessingItem
	err = uc.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.thoughts.SetTranscription(ctx, tx, p.ThoughtID, text); err != nil {
			return fmt.Errorf("save transcription: %w", err)
		}
		if enrich, err = uc.next.OnTranscribeSuccess(ctx, tx, p, text); err != nil {
			return fmt.Errorf("enqueue enrich: %w", err)
		}
		return job.Complete(ctx, tx, model.ResultDone)
	})
	if err != nil {
		return err
	}

	uc.log.Debug().
		Str("thought_id", p.ThoughtID).
		Int("chars", len(text)).
		Float64("confidence", res.Confidence).
		Str("enrich_item_id", enrich.ID).
		Msg("transcription stored")
	uc.notifier.Send(ctx, p.OwnerID, p.ThoughtID, adapter.EventTranscribed, model.StageTranscribe, map[string]any{
		"text":       text,
		"confidence": res.Confidence,
	})
	return nil
}
