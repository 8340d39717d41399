package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/condo-service/internal/events"
)

// redisPublisher is the subset of *redis.Client used for fan-out.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisRealtime publishes ticket events on a per-organization pub/sub channel. Subscribers
// (the websocket gateway) deliver each message only to the listed audience.
type RedisRealtime struct {
	client redisPublisher
	prefix string
}

// NewRedisRealtime builds the publisher. prefix namespaces channel names.
func NewRedisRealtime(client *redis.Client, prefix string) *RedisRealtime {
	return &RedisRealtime{client: client, prefix: prefix}
}

// Channel returns the pub/sub channel for an organization.
func (r *RedisRealtime) Channel(organizationID string) string {
	return fmt.Sprintf("%s:org:%s", r.prefix, organizationID)
}

// PublishRealtime sends the event to its organization channel.
func (r *RedisRealtime) PublishRealtime(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.Channel(event.OrganizationID), body).Err()
}
