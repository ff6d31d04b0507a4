package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"thought-pipeline/internal/domain/ports/adapter"
)

var _ adapter.NotificationSink = (*Publisher)(nil)

// Publisher fans notifications out on a per-owner pub/sub channel.
type Publisher struct {
	client RedisClient
	prefix string
}

func NewPublisher(client RedisClient, prefix string) *Publisher {
	if prefix == "" {
		prefix = "thoughts:events:"
	}
	return &Publisher{client: client, prefix: prefix}
}

func (p *Publisher) Name() string { return "redis" }

func (p *Publisher) Channel(ownerID string) string { return p.prefix + ownerID }

func (p *Publisher) Publish(ctx context.Context, n adapter.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return p.client.Publish(ctx, p.Channel(n.OwnerID), b)
}
