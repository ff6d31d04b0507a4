package adapter

import (
	"context"
	"time"
)

type EventType string

const (
	EventTranscribed          EventType = "thought.transcribed"
	EventEnriched             EventType = "thought.enriched"
	EventCalendarEventCreated EventType = "thought.calendar_event_created"
	EventStageFailed          EventType = "thought.stage_failed"
)

// Notification is the lightweight payload broadcast to a user's real-time channel.
type Notification struct {
	Type      EventType      `json:"type"`
	OwnerID   string         `json:"owner_id"`
	ThoughtID string         `json:"thought_id"`
	Stage     string         `json:"stage,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

// NotificationSink delivers one notification to one channel.
type NotificationSink interface {
	Name() string
	Publish(ctx context.Context, n Notification) error
}
