package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/query-kb-api/internal/models"
)

// NotificationPublisher fans notifications out over a Redis pub/sub channel.
type NotificationPublisher struct {
	client  *redis.Client
	channel string
}

// NewNotificationPublisher constructs a publisher for channel.
func NewNotificationPublisher(client *redis.Client, channel string) *NotificationPublisher {
	return &NotificationPublisher{client: client, channel: channel}
}

// Publish sends one notification; the subscriber count is not checked.
func (p *NotificationPublisher) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification to %s: %w", p.channel, err)
	}
	return nil
}
