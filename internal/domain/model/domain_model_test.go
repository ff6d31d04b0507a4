//go:build !integration

package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"thought-pipeline/internal/domain"
)

// --- Thought Model Tests ---

func TestNewThought(t *testing.T) {
	t.Run("should create a text thought with a generated id", func(t *testing.T) {
		th, err := NewThought("", "owner-1", "buy milk", nil)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if th.ID == "" {
			t.Error("expected thought ID to be non-empty")
		}
		if th.HasAudio() {
			t.Error("expected a text thought to have no audio")
		}
		if th.Text() != "buy milk" {
			t.Errorf("expected text 'buy milk', got %q", th.Text())
		}
	})

	t.Run("should accept audio without text", func(t *testing.T) {
		ref := "s3://bucket/a.m4a"
		th, err := NewThought("t-1", "owner-1", "", &ref)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !th.HasAudio() {
			t.Error("expected audio thought")
		}
	})

	t.Run("should reject a thought with neither text nor audio", func(t *testing.T) {
		_, err := NewThought("", "owner-1", "   ", nil)
		if !errors.Is(err, domain.ErrNoContent) {
			t.Errorf("expected ErrNoContent, got %v", err)
		}
	})

	t.Run("should reject an empty owner", func(t *testing.T) {
		_, err := NewThought("", "", "hi", nil)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestThought_TextPrefersTranscription(t *testing.T) {
	ref := "a.ogg"
	th, _ := NewThought("", "owner-1", "", &ref)
	text := "call the dentist"
	th.TranscribedText = &text
	if th.Text() != text {
		t.Errorf("expected transcription to win, got %q", th.Text())
	}
}

func TestThought_ApplyEnrichment(t *testing.T) {
	th, _ := NewThought("", "owner-1", "idea: solar kettle", nil)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	th.ApplyEnrichment(Enrichment{
		Category:    NewCategory("idea", "product"),
		Tags:        []string{"#Solar", "solar", "Kitchen Gadgets"},
		Confidence:  1.4,
		Suggestions: []string{"sketch it"},
		ProcessedAt: at,
	})
	if !th.Processed || th.ProcessedAt == nil || !th.ProcessedAt.Equal(at) {
		t.Fatalf("expected thought to be processed at %s", at)
	}
	if *th.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", *th.Confidence)
	}
	if len(th.Tags) != 2 || th.Tags[0] != "solar" || th.Tags[1] != "kitchen-gadgets" {
		t.Errorf("unexpected normalized tags: %v", th.Tags)
	}
	if th.Category.Main != CategoryIdea || th.Category.Display.Label != "Idea" {
		t.Errorf("unexpected category: %+v", th.Category)
	}
}

func TestClampConfidence(t *testing.T) {
	for in, want := range map[float64]float64{-0.5: 0, 0.42: 0.42, 3: 1} {
		if got := ClampConfidence(in); got != want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
	if ClampConfidence(math.NaN()) != 0 {
		t.Error("expected NaN to clamp to 0")
	}
}

// --- Category Tests ---

func TestNewCategory_FallsBackToNote(t *testing.T) {
	c := NewCategory("shopping-list", "")
	if c.Main != CategoryNote {
		t.Errorf("expected unknown category to fall back to note, got %s", c.Main)
	}
	if c.Display.Icon == "" {
		t.Error("expected presentation metadata to be populated")
	}
	if NewCategory(" TASK ", "").Main != CategoryTask {
		t.Error("expected category parsing to be case and space insensitive")
	}
}

func TestNormalizeTags_Caps(t *testing.T) {
	in := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	if got := NormalizeTags(in); len(got) != maxTags {
		t.Errorf("expected %d tags, got %d", maxTags, len(got))
	}
	if got := NormalizeTags([]string{"", "#", "  "}); len(got) != 0 {
		t.Errorf("expected empty tags to be dropped, got %v", got)
	}
}

// --- ProcessingItem Tests ---

func TestNewProcessingItem(t *testing.T) {
	it, err := NewProcessingItem("t-1", "owner-1", StageEnrich, nil, 0)
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if it.Status != ItemStatusPending || it.Attempts != 0 || it.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("unexpected initial item: %+v", it)
	}
	if _, err := NewProcessingItem("t-1", "owner-1", Stage("summarize"), nil, 3); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown stage, got %v", err)
	}
}

func TestProcessingItem_Lifecycle(t *testing.T) {
	now := time.Now()

	t.Run("claim then complete", func(t *testing.T) {
		it, _ := NewProcessingItem("t-1", "owner-1", StageEnrich, nil, 3)
		if err := it.Claim(now); err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := it.Complete(ResultDone, now); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if it.Status != ItemStatusCompleted || it.Result != ResultDone {
			t.Errorf("unexpected item: %+v", it)
		}
		if err := it.Claim(now); !errors.Is(err, domain.ErrStaleTransition) {
			t.Errorf("expected completed item to refuse claims, got %v", err)
		}
	})

	t.Run("retryable failure goes back to pending with delay", func(t *testing.T) {
		it, _ := NewProcessingItem("t-1", "owner-1", StageEnrich, nil, 3)
		_ = it.Claim(now)
		if err := it.Fail("timeout", true, 10*time.Second, now); err != nil {
			t.Fatalf("fail: %v", err)
		}
		if it.Status != ItemStatusPending || it.Attempts != 1 || it.LastError != "timeout" {
			t.Errorf("unexpected item after first failure: %+v", it)
		}
		if !it.AvailableAt.Equal(now.Add(10 * time.Second)) {
			t.Errorf("expected available_at to be delayed, got %s", it.AvailableAt)
		}
	})

	t.Run("exhausted attempts are terminal", func(t *testing.T) {
		it, _ := NewProcessingItem("t-1", "owner-1", StageEnrich, nil, 3)
		for i := 0; i < 3; i++ {
			if err := it.Claim(now); err != nil {
				t.Fatalf("claim %d: %v", i, err)
			}
			_ = it.Fail("boom", true, 0, now)
		}
		if it.Status != ItemStatusFailed || it.Attempts != 3 {
			t.Errorf("expected failed with 3 attempts, got %+v", it)
		}
		if it.Attempts > it.MaxAttempts {
			t.Error("attempts must never exceed max attempts")
		}
	})

	t.Run("non-retryable failure fails fast but consumes one attempt", func(t *testing.T) {
		it, _ := NewProcessingItem("t-1", "owner-1", StageCalendar, nil, 3)
		_ = it.Claim(now)
		_ = it.Fail("auth expired", false, 0, now)
		if it.Status != ItemStatusFailed || it.Attempts != 1 {
			t.Errorf("expected failed after one attempt, got %+v", it)
		}
	})

	t.Run("complete requires processing", func(t *testing.T) {
		it, _ := NewProcessingItem("t-1", "owner-1", StageEnrich, nil, 3)
		if err := it.Complete(ResultDone, now); !errors.Is(err, domain.ErrStaleTransition) {
			t.Errorf("expected ErrStaleTransition, got %v", err)
		}
	})
}

func TestStatusSummary_Add(t *testing.T) {
	s := NewStatusSummary("owner-1")
	s.Add(StageEnrich, ItemStatusCompleted, 2)
	s.Add(StageCalendar, ItemStatusFailed, 1)
	s.Add(StageEnrich, ItemStatusPending, 1)
	if s.Completed != 2 || s.Failed != 1 || s.Pending != 1 {
		t.Errorf("unexpected totals: %+v", s)
	}
	if s.ByStage[StageEnrich][ItemStatusCompleted] != 2 {
		t.Errorf("unexpected per-stage count: %v", s.ByStage)
	}
}

// --- Calendar Suggestion Tests ---

func TestCalendarEventSuggestion_Actionable(t *testing.T) {
	cases := []struct {
		name string
		s    CalendarEventSuggestion
		want bool
	}{
		{"at threshold", CalendarEventSuggestion{HasEvent: true, NaturalLanguageText: "lunch fri 1pm", Confidence: 0.7}, true},
		{"below threshold", CalendarEventSuggestion{HasEvent: true, NaturalLanguageText: "lunch", Confidence: 0.69}, false},
		{"no event", CalendarEventSuggestion{HasEvent: false, NaturalLanguageText: "lunch", Confidence: 0.9}, false},
		{"empty text", CalendarEventSuggestion{HasEvent: true, Confidence: 0.9}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.Actionable(EventConfidenceThreshold); got != tc.want {
				t.Errorf("Actionable = %v, want %v", got, tc.want)
			}
		})
	}
}
