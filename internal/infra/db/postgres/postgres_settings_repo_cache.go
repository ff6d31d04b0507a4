package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"thought-pipeline/internal/domain/model"
	"thought-pipeline/internal/domain/ports/repository"
	"thought-pipeline/internal/infra/metrics"
	red "thought-pipeline/internal/infra/redis"
)

var _ repository.SettingsRepository = (*settingsRepoCacheDecorator)(nil)

type settingsRepoCacheDecorator struct {
	inner  repository.SettingsRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewSettingsRepoCacheDecorator caches settings reads. The calendar stage reads settings
// for every thought so a short TTL removes most of the DB round trips.
func NewSettingsRepoCacheDecorator(inner repository.SettingsRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) *settingsRepoCacheDecorator {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &settingsRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func settingsKey(ownerID string) string { return fmt.Sprintf("settings:owner:%s", ownerID) }

func (d *settingsRepoCacheDecorator) Get(ctx context.Context, ownerID string) (*model.UserIntegrationSettings, error) {
	key := settingsKey(ownerID)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var s model.UserIntegrationSettings
		if json.Unmarshal([]byte(val), &s) == nil {
			metrics.IncSettingsCache("hit")
			return &s, nil
		}
	} else if !errors.Is(err, redis.Nil) && d.logger != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("settings cache read failed")
	}

	metrics.IncSettingsCache("miss")
	s, err := d.inner.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(s); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return s, nil
}

// Invalidate drops the cached copy; the account subsystem calls it after writes.
func (d *settingsRepoCacheDecorator) Invalidate(ctx context.Context, ownerID string) error {
	return d.cache.Del(ctx, settingsKey(ownerID))
}
