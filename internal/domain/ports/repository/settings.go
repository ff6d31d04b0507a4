package repository

import (
	"context"

	"thought-pipeline/internal/domain/model"
)

// SettingsRepository is the read-only settings provider. Returns domain.ErrNotFound
// when the owner has no settings row.
type SettingsRepository interface {
	Get(ctx context.Context, ownerID string) (*model.UserIntegrationSettings, error)
}
