package model

import (
	"fmt"
	"time"

	"thought-pipeline/internal/domain"

	"github.com/oklog/ulid/v2"
)

type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageEnrich     Stage = "enrich"
	StageCalendar   Stage = "calendar"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageTranscribe, StageEnrich, StageCalendar}

func (s Stage) Valid() bool {
	switch s {
	case StageTranscribe, StageEnrich, StageCalendar:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// Terminal reports whether no further transitions can leave the status.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

const DefaultMaxAttempts = 3

// ProcessingItem tracks one (thought, stage) attempt lineage. It doubles as the durable
// job body: Payload holds the encoded stage payload.
type ProcessingItem struct {
	ID          string
	ThoughtID   string
	OwnerID     string
	Stage       Stage
	Status      ItemStatus
	Attempts    int
	MaxAttempts int
	LastError   string
	Result      string
	Payload     []byte
	AvailableAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewProcessingItem(thoughtID, ownerID string, stage Stage, payload []byte, maxAttempts int) (*ProcessingItem, error) {
	if thoughtID == "" || ownerID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !stage.Valid() {
		return nil, fmt.Errorf("stage %q: %w", stage, domain.ErrInvalidArgument)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	return &ProcessingItem{
		ID:          ulid.Make().String(),
		ThoughtID:   thoughtID,
		OwnerID:     ownerID,
		Stage:       stage,
		Status:      ItemStatusPending,
		MaxAttempts: maxAttempts,
		Payload:     payload,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (i *ProcessingItem) AttemptsLeft() int {
	return i.MaxAttempts - i.Attempts
}

// Claim moves a pending item to processing.
func (i *ProcessingItem) Claim(now time.Time) error {
	if i.Status != ItemStatusPending {
		return fmt.Errorf("claim %s from %s: %w", i.ID, i.Status, domain.ErrStaleTransition)
	}
	i.Status = ItemStatusProcessing
	i.UpdatedAt = now
	return nil
}

// Complete moves a processing item to completed. result is a short completion note.
func (i *ProcessingItem) Complete(result string, now time.Time) error {
	if i.Status != ItemStatusProcessing {
		return fmt.Errorf("complete %s from %s: %w", i.ID, i.Status, domain.ErrStaleTransition)
	}
	i.Status = ItemStatusCompleted
	i.Result = result
	i.LastError = ""
	i.UpdatedAt = now
	return nil
}

// Fail records one failed attempt. With attempts left and a retryable error the item
// returns to pending and becomes available again after retryDelay; otherwise it is failed.
func (i *ProcessingItem) Fail(cause string, retryable bool, retryDelay time.Duration, now time.Time) error {
	if i.Status != ItemStatusProcessing {
		return fmt.Errorf("fail %s from %s: %w", i.ID, i.Status, domain.ErrStaleTransition)
	}
	if i.Attempts < i.MaxAttempts {
		i.Attempts++
	}
	i.LastError = cause
	i.UpdatedAt = now
	if retryable && i.Attempts < i.MaxAttempts {
		i.Status = ItemStatusPending
		i.AvailableAt = now.Add(retryDelay)
		return nil
	}
	i.Status = ItemStatusFailed
	return nil
}

// Defer hands a processing item back to pending until now+delay without using up
// an attempt.
func (i *ProcessingItem) Defer(cause string, delay time.Duration, now time.Time) error {
	if i.Status != ItemStatusProcessing {
		return fmt.Errorf("defer %s from %s: %w", i.ID, i.Status, domain.ErrStaleTransition)
	}
	i.Status = ItemStatusPending
	i.LastError = cause
	i.AvailableAt = now.Add(delay)
	i.UpdatedAt = now
	return nil
}

// StatusSummary aggregates item counts for one owner.
type StatusSummary struct {
	OwnerID    string
	Pending    int
	Processing int
	Completed  int
	Failed     int
	ByStage    map[Stage]map[ItemStatus]int
}

func NewStatusSummary(ownerID string) *StatusSummary {
	return &StatusSummary{OwnerID: ownerID, ByStage: make(map[Stage]map[ItemStatus]int)}
}

func (s *StatusSummary) Add(stage Stage, status ItemStatus, n int) {
	if s.ByStage[stage] == nil {
		s.ByStage[stage] = make(map[ItemStatus]int)
	}
	s.ByStage[stage][status] += n
	switch status {
	case ItemStatusPending:
		s.Pending += n
	case ItemStatusProcessing:
		s.Processing += n
	case ItemStatusCompleted:
		s.Completed += n
	case ItemStatusFailed:
		s.Failed += n
	}
}
