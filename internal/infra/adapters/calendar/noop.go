package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/adapter"
)

var _ adapter.CalendarCreator = (*NoopCreator)(nil)

// NoopCreator logs the request and returns a fake event one hour from now.
type NoopCreator struct {
	log *zerolog.Logger
}

func NewNoopCreator(logger *zerolog.Logger) *NoopCreator {
	l := logger.With().Str("component", "noop_calendar").Logger()
	return &NoopCreator{log: &l}
}

func (n *NoopCreator) CreateFromNaturalLanguage(ctx context.Context, creds model.CalendarCredentials, calendarID, timezone, text string) (model.CreatedEvent, error) {
	id := uuid.NewString()
	starts := time.Now().Add(time.Hour).Truncate(time.Minute)
	n.log.Info().Str("calendar_id", calendarID).Str("timezone", timezone).Str("text", text).Str("event_id", id).Msg("noop quick-add")
	return model.CreatedEvent{EventID: id, EventLink: fmt.Sprintf("https://calendar.invalid/event/%s", id), StartsAt: &starts}, nil
}
