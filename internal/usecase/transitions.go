package usecase

import (
	"context"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	"thought-pipeline/internal/domain/ports/repository"
)

// Transitions is the forward-only stage chain. Each stage calls exactly one of these on
// success, inside the transaction that records its result.
type Transitions struct {
	queue adapter.JobQueue
}

func NewTransitions(queue adapter.JobQueue) Transitions { return Transitions{queue: queue} }

func (t Transitions) EnqueueTranscribe(ctx context.Context, tx repository.Tx, thoughtID, ownerID, audioRef string) (*model.ProcessingItem, error) {
	item, _, err := t.queue.Enqueue(ctx, tx, model.StageTranscribe, thoughtID, ownerID,
		model.TranscribePayload{ThoughtID: thoughtID, OwnerID: ownerID, AudioRef: audioRef})
	return item, err
}

func (t Transitions) EnqueueEnrich(ctx context.Context, tx repository.Tx, thoughtID, ownerID, content string) (*model.ProcessingItem, error) {
	item, _, err := t.queue.Enqueue(ctx, tx, model.StageEnrich, thoughtID, ownerID,
		model.EnrichPayload{ThoughtID: thoughtID, OwnerID: ownerID, Content: content})
	return item, err
}

func (t Transitions) EnqueueCalendar(ctx context.Context, tx repository.Tx, thoughtID, ownerID, content string) (*model.ProcessingItem, error) {
	item, _, err := t.queue.Enqueue(ctx, tx, model.StageCalendar, thoughtID, ownerID,
		model.CalendarPayload{ThoughtID: thoughtID, OwnerID: ownerID, Content: content})
	return item, err
}

// OnTranscribeSuccess hands the transcription to enrichment.
func (t Transitions) OnTranscribeSuccess(ctx context.Context, tx repository.Tx, p model.TranscribePayload, text string) (*model.ProcessingItem, error) {
	return t.EnqueueEnrich(ctx, tx, p.ThoughtID, p.OwnerID, text)
}

// OnEnrichSuccess enqueues the calendar stage for event candidates only. It returns a
// nil item when the thought is not a candidate.
func (t Transitions) OnEnrichSuccess(ctx context.Context, tx repository.Tx, p model.EnrichPayload, candidate bool) (*model.ProcessingItem, error) {
	if !candidate {
		return nil, nil
	}
	return t.EnqueueCalendar(ctx, tx, p.ThoughtID, p.OwnerID, p.Content)
}
