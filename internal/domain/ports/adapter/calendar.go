package adapter

import (
	"context"

	"thought-pipeline/internal/domain/model"
)

// CalendarCreator creates events by handing free-form text to the provider's parser.
// Revoked or expired credentials must surface as domain.ErrAuthorizationExpired.
type CalendarCreator interface {
	CreateFromNaturalLanguage(ctx context.Context, creds model.CalendarCredentials, calendarID, timezone, text string) (model.CreatedEvent, error)
}
