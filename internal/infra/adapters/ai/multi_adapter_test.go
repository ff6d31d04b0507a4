package ai_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
	ai "thought-pipeline/internal/infra/adapters/ai"
	"thought-pipeline/internal/infra/logging"
)

type stubAI struct {
	name      string
	err       error
	classifyN int
	detectN   int
}

func (s *stubAI) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	s.classifyN++
	if s.err != nil {
		return adapter.Classification{}, s.err
	}
	return adapter.Classification{Category: model.NewCategory("idea", s.name)}, nil
}

func (s *stubAI) DetectEvent(ctx context.Context, content string, ref adapter.EventReference) (model.CalendarEventSuggestion, error) {
	s.detectN++
	if s.err != nil {
		return model.CalendarEventSuggestion{}, s.err
	}
	return model.CalendarEventSuggestion{Reason: s.name}, nil
}

func TestMultiAdapter_DefaultFirstThenFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	gem := &stubAI{name: "gemini"}

	m := ai.NewMultiAdapter("gemini", map[string]ai.Provider{"openai": open, "gemini": gem}, logging.Nop())
	if got := m.Providers(); len(got) != 2 || got[0] != "gemini" {
		t.Fatalf("default provider should be tried first, got %v", got)
	}

	out, err := m.Categorize(ctx, "x", adapter.ClassificationContext{})
	if err != nil || out.Category.Subcategory != "gemini" {
		t.Fatalf("expected the default provider to answer, got %+v, %v", out, err)
	}
	if open.classifyN != 0 {
		t.Fatalf("fallback should not be called when the default succeeds")
	}

	gem.err = errors.New("503")
	sug, err := m.DetectEvent(ctx, "x", adapter.EventReference{})
	if err != nil || sug.Reason != "openai" {
		t.Fatalf("expected fallback to openai, got %+v, %v", sug, err)
	}
}

func TestMultiAdapter_AllFail(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	m := ai.NewMultiAdapter("openai", map[string]ai.Provider{
		"openai": &stubAI{err: boom},
		"gemini": &stubAI{err: boom},
	}, logging.Nop())

	_, err := m.Categorize(context.Background(), "x", adapter.ClassificationContext{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the last provider error to be wrapped, got %v", err)
	}

	_, err = ai.NewMultiAdapter("openai", nil, logging.Nop()).Categorize(context.Background(), "x", adapter.ClassificationContext{})
	if err == nil {
		t.Fatal("expected an error with no providers")
	}
}

type slowAI struct {
	stubAI
	active, peak atomic.Int32
}

func (s *slowAI) Categorize(ctx context.Context, content string, cctx adapter.ClassificationContext) (adapter.Classification, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return adapter.Classification{}, nil
}

func TestLimitedAI(t *testing.T) {
	t.Parallel()
	inner := &slowAI{}
	l := ai.NewLimitedAI(inner, 2)

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func() {
			_, _ = l.Categorize(context.Background(), "x", adapter.ClassificationContext{})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	if p := inner.peak.Load(); p > 2 {
		t.Fatalf("expected at most 2 concurrent calls, saw %d", p)
	}
}

func TestNoopAIAdapter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := ai.NewNoopAIAdapter()

	tr, err := a.Transcribe(ctx, "https://files.example/voice/buy_milk.ogg")
	if err != nil || tr.Text != "buy milk" {
		t.Fatalf("unexpected transcription %+v, %v", tr, err)
	}
	cls, err := a.Categorize(ctx, tr.Text, adapter.ClassificationContext{})
	if err != nil || cls.Category.Main != model.CategoryTask {
		t.Fatalf("unexpected classification %+v, %v", cls, err)
	}
	sug, _ := a.DetectEvent(ctx, "Lunch tomorrow at 1pm", adapter.EventReference{Now: time.Now()})
	if !sug.HasEvent || sug.Confidence != 1 {
		t.Fatalf("expected an event, got %+v", sug)
	}
	sug, _ = a.DetectEvent(ctx, "some idea", adapter.EventReference{Now: time.Now()})
	if sug.HasEvent {
		t.Fatalf("expected no event, got %+v", sug)
	}
}
