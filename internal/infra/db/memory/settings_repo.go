package memory

import (
	"context"

	"thought-pipeline/internal/domain"
	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
)

var _ repository.SettingsRepository = (*SettingsRepo)(nil)

type SettingsRepo struct {
	s *Store
}

func NewSettingsRepo(s *Store) *SettingsRepo { return &SettingsRepo{s: s} }

func (r *SettingsRepo) Get(ctx context.Context, ownerID string) (*model.UserIntegrationSettings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.settings[ownerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *st
	c.Preferences.PreferredCategories = append([]model.MainCategory(nil), st.Preferences.PreferredCategories...)
	return &c, nil
}

// Put stands in for the account subsystem that owns settings writes.
func (r *SettingsRepo) Put(st *model.UserIntegrationSettings) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *st
	r.s.settings[st.OwnerID] = &c
}
