package ai

import (
	"context"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
)

// Compile-time check
var _ Provider = (*limitedAI)(nil)

// limitedAI caps concurrent calls to a provider across every stage sharing it.
type limitedAI struct {
	inner Provider
	sem   chan struct{}
}

func NewLimitedAI(inner Provider, maxConcurrent int) Provider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAI) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	if err := l.acquire(ctx); err != nil {
		return adapter.Classification{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.Categorize(ctx, content, cctx)
}

func (l *limitedAI) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	if err := l.acquire(ctx); err != nil {
		return model.CalendarEventSuggestion{}, err
	}
	defer func() { <-l.sem }()
	return l.inner.DetectEvent(ctx, content, ref)
}
