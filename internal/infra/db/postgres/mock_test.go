//go:build !integration

package postgres

import (
	"context"
	"time"

	"thought-pipeline/internal/domain/model"
	red "thought-pipeline/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

type mockInnerSettingsRepo struct {
	GetFunc func(ctx context.Context, ownerID string) (*model.UserIntegrationSettings, error)
}

func (m *mockInnerSettingsRepo) Get(ctx context.Context, ownerID string) (*model.UserIntegrationSettings, error) {
	return m.GetFunc(ctx, ownerID)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc     func(ctx context.Context, key string) (string, error)
	SetFunc     func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc     func(ctx context.Context, keys ...string) error
	PublishFunc func(ctx context.Context, channel string, message interface{}) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	return nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc != nil {
		return m.DelFunc(ctx, keys...)
	}
	return nil
}
func (m *mockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, channel, message)
	}
	return nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
