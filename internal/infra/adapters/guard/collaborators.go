package guard

import (
	"context"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
)

var (
	_ adapter.SpeechToText    = (*SpeechToText)(nil)
	_ adapter.Classifier      = (*Classifier)(nil)
	_ adapter.EventDetector   = (*EventDetector)(nil)
	_ adapter.CalendarCreator = (*CalendarCreator)(nil)
)

type SpeechToText struct {
	Inner adapter.SpeechToText
	Guard *Guard
}

func (s *SpeechToText) Transcribe(ctx context.Context, audioRef string) (adapter.Transcription, error) {
	return Do(ctx, s.Guard, func(ctx context.Context) (adapter.Transcription, error) {
		return s.Inner.Transcribe(ctx, audioRef)
	})
}

type Classifier struct {
	Inner adapter.Classifier
	Guard *Guard
}

func (c *Classifier) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	return Do(ctx, c.Guard, func(ctx context.Context) (adapter.Classification, error) {
		return c.Inner.Categorize(ctx, content, cctx)
	})
}

type EventDetector struct {
	Inner adapter.EventDetector
	Guard *Guard
}

func (d *EventDetector) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	return Do(ctx, d.Guard, func(ctx context.Context) (model.CalendarEventSuggestion, error) {
		return d.Inner.DetectEvent(ctx, content, ref)
	})
}

type CalendarCreator struct {
	Inner adapter.CalendarCreator
	Guard *Guard
}

func (c *CalendarCreator) CreateFromNaturalLanguage(ctx context.Context, creds model.CalendarCredentials, calendarID, timezone, text string) (model.CreatedEvent, error) {
	return Do(ctx, c.Guard, func(ctx context.Context) (model.CreatedEvent, error) {
		return c.Inner.CreateFromNaturalLanguage(ctx, creds, calendarID, timezone, text)
	})
}
