package model

import "time"

// EventConfidenceThreshold is the hard gate for automatic calendar event creation.
const EventConfidenceThreshold = 0.7

// CalendarEventSuggestion is the transient output of event detection. It is never persisted.
type CalendarEventSuggestion struct {
	HasEvent            bool    `json:"has_event"`
	NaturalLanguageText string  `json:"natural_language_text"`
	Confidence          float64 `json:"confidence"`
	Reason              string  `json:"reason"`
}

// Actionable reports whether the suggestion clears every gate for event creation.
func (s CalendarEventSuggestion) Actionable(threshold float64) bool {
	return s.HasEvent && s.NaturalLanguageText != "" && s.Confidence >= threshold
}

// CreatedEvent is what the calendar provider returns for a quick-add.
type CreatedEvent struct {
	EventID   string
	EventLink string
	StartsAt  *time.Time
}

// Completion notes stored in ProcessingItem.Result.
const (
	ResultDone               = "done"
	ResultEventCreated       = "event_created"
	ResultCalendarQueued     = "calendar_queued"
	ResultSkipIntegrationOff = "skipped:integration_disabled"
	ResultSkipAutoEventsOff  = "skipped:auto_events_disabled"
	ResultSkipNoEvent        = "skipped:no_event"
	ResultSkipLowConfidence  = "skipped:low_confidence"
)
