package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/egannguyen/go-order-payments/internal/repository"
	goredis "github.com/redis/go-redis/v9"
)

type webhookDedup struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewWebhookDedup creates a Redis-backed processed-event set. Keys expire
// after ttl, which must cover the gateway's webhook retry window.
func NewWebhookDedup(client *goredis.Client, ttl time.Duration) repository.WebhookDedup {
	return &webhookDedup{client: client, ttl: ttl}
}

func (d *webhookDedup) MarkProcessed(ctx context.Context, key string) (bool, error) {
	// SET NX is atomic, so concurrent deliveries of the same event agree
	// on a single winner.
	first, err := d.client.SetNX(ctx, "webhook:processed:"+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record processed webhook: %w", err)
	}
	return first, nil
}

func (d *webhookDedup) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, "webhook:processed:"+key).Err(); err != nil {
		return fmt.Errorf("failed to forget processed webhook: %w", err)
	}
	return nil
}
