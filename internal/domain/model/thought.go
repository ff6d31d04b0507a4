package model

import (
	"strings"
	"time"

	"thought-pipeline/internal/domain"

	"github.com/google/uuid"
)

// Thought is a captured note, the unit the pipeline enriches.
type Thought struct {
	ID              string
	OwnerID         string
	Content         string
	TranscribedText *string
	AudioRef        *string
	Category        Category
	Tags            []string
	Confidence      *float64
	Suggestions     []string
	Processed       bool
	ProcessedAt     *time.Time
	ReminderAt      *time.Time
	Event           *EventRef
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventRef points at a calendar event created from a thought.
type EventRef struct {
	EventID   string    `json:"event_id"`
	EventLink string    `json:"event_link"`
	CreatedAt time.Time `json:"created_at"`
}

func NewThought(id, ownerID, content string, audioRef *string) (*Thought, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if strings.TrimSpace(content) == "" && (audioRef == nil || *audioRef == "") {
		return nil, domain.ErrNoContent
	}
	now := time.Now()
	return &Thought{
		ID:        id,
		OwnerID:   ownerID,
		Content:   content,
		AudioRef:  audioRef,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (t *Thought) HasAudio() bool { return t.AudioRef != nil && *t.AudioRef != "" }

// Text returns the best available text: the transcription when present, else the raw content.
func (t *Thought) Text() string {
	if t.TranscribedText != nil && *t.TranscribedText != "" {
		return *t.TranscribedText
	}
	return t.Content
}

// Enrichment is the all-or-nothing update the enrichment stage applies to a thought.
type Enrichment struct {
	Category    Category
	Tags        []string
	Confidence  float64
	Suggestions []string
	ProcessedAt time.Time
}

func (t *Thought) ApplyEnrichment(e Enrichment) {
	conf := ClampConfidence(e.Confidence)
	at := e.ProcessedAt
	t.Category = e.Category
	t.Tags = NormalizeTags(e.Tags)
	t.Confidence = &conf
	t.Suggestions = e.Suggestions
	t.Processed = true
	t.ProcessedAt = &at
	t.UpdatedAt = at
}

// ClampConfidence bounds a collaborator-supplied score to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
