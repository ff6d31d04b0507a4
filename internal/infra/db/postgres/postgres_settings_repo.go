package postgres

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v4/pgxpool"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

var _ repository.SettingsRepository = (*SettingsRepo)(nil)

// SettingsRepo reads user_integration_settings. The account subsystem owns the writes.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) Get(ctx context.Context, ownerID string) (*model.UserIntegrationSettings, error) {
	const q = `
SELECT owner_id, calendar_integration_enabled, auto_calendar_events_enabled, timezone,
       default_calendar_id, calendar_provider, encrypted_refresh_token, preferences, telegram_chat_id
  FROM user_integration_settings WHERE owner_id = $1;`
	row, err := pickRow(ctx, r.pool, nil, q, ownerID)
	if err != nil {
		return nil, err
	}
	var s model.UserIntegrationSettings
	var prefs []byte
	if err := row.Scan(&s.OwnerID, &s.CalendarIntegrationEnabled, &s.AutoCalendarEventsEnabled, &s.Timezone,
		&s.DefaultCalendarID, &s.Credentials.Provider, &s.Credentials.EncryptedRefreshToken, &prefs, &s.TelegramChatID); err != nil {
		return nil, mapPgError(err)
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &s.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences of %s: %w", ownerID, err)
		}
	}
	return &s, nil
}
