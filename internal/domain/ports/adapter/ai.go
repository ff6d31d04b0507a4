package adapter

import (
	"context"
	"time"

	"thought-pipeline/internal/domain/model"
)

// Transcription is the speech-to-text result.
type Transcription struct {
	Text       string
	Confidence float64
}

// SpeechToText converts an audio reference (URL or object key) to text. Unsupported
// formats should be reported with domain.ErrUnsupportedAudio.
type SpeechToText interface {
	Transcribe(ctx context.Context, audioRef string) (Transcription, error)
}

// RecentThought is the slice of a past thought handed to the classifier as context.
type RecentThought struct {
	Content  string
	Category model.MainCategory
	Tags     []string
}

type ClassificationContext struct {
	Recent      []RecentThought
	Preferences model.Preferences
}

type Classification struct {
	Category    model.Category
	Tags        []string
	Confidence  float64
	Suggestions []string
}

// Classifier is stateless per call.
type Classifier interface {
	Categorize(ctx context.Context, content string, cctx ClassificationContext) (Classification, error)
}

// EventReference anchors relative dates ("tomorrow") during detection.
type EventReference struct {
	Now      time.Time
	Timezone string
}

type EventDetector interface {
	DetectEvent(ctx context.Context, content string, ref EventReference) (model.CalendarEventSuggestion, error)
}
