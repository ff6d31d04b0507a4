package ai

import (
	"context"
	"path"
	"strings"
	"time"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
)

var (
	_ Provider             = (*NoopAIAdapter)(nil)
	_ adapter.SpeechToText = (*NoopAIAdapter)(nil)
)

// NoopAIAdapter is the offline collaborator for dev mode. It never calls out and its
// answers are deterministic.
type NoopAIAdapter struct {
	delay time.Duration
}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{delay: 50 * time.Millisecond}
}

func (a *NoopAIAdapter) wait(ctx context.Context) error {
	select {
	case <-time.After(a.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *NoopAIAdapter) Transcribe(ctx context.Context, audioRef string) (adapter.Transcription, error) {
	if err := a.wait(ctx); err != nil {
		return adapter.Transcription{}, err
	}
	name := strings.TrimSuffix(path.Base(audioRef), path.Ext(audioRef))
	return adapter.Transcription{Text: strings.ReplaceAll(name, "_", " "), Confidence: 1}, nil
}

var noopKeywords = []struct {
	word string
	main model.MainCategory
}{
	{"remind", model.CategoryReminder},
	{"meeting", model.CategoryEvent},
	{"buy", model.CategoryTask},
	{"todo", model.CategoryTask},
	{"idea", model.CategoryIdea},
	{"?", model.CategoryQuestion},
}

func (a *NoopAIAdapter) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	if err := a.wait(ctx); err != nil {
		return adapter.Classification{}, err
	}
	lc := strings.ToLower(content)
	main := model.CategoryNote
	for _, k := range noopKeywords {
		if strings.Contains(lc, k.word) {
			main = k.main
			break
		}
	}
	words := strings.Fields(lc)
	if len(words) > 3 {
		words = words[:3]
	}
	return adapter.Classification{
		Category:   model.NewCategory(string(main), ""),
		Tags:       model.NormalizeTags(words),
		Confidence: 0.5,
	}, nil
}

// DetectEvent reports an event for anything mentioning tomorrow, at full confidence.
func (a *NoopAIAdapter) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	if err := a.wait(ctx); err != nil {
		return model.CalendarEventSuggestion{}, err
	}
	if !strings.Contains(strings.ToLower(content), "tomorrow") {
		return model.CalendarEventSuggestion{Reason: "noop: no date"}, nil
	}
	return model.CalendarEventSuggestion{HasEvent: true, NaturalLanguageText: content, Confidence: 1, Reason: "noop"}, nil
}
