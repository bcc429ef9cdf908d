package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "susu:events"

// publisher is the slice of the Redis client the notifier uses.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes each event as JSON on a Redis channel.
type RedisNotifier struct {
	client  publisher
	closer  func() error
	channel string
	timeout time.Duration
}

// NewRedisNotifier connects to Redis and verifies the connection.
func NewRedisNotifier(addr, password string, db int) (*RedisNotifier, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisNotifier{
		client:  client,
		closer:  client.Close,
		channel: DefaultChannel,
		timeout: 500 * time.Millisecond,
	}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, events ...Event) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode %s event: %w", e.Kind, err)
		}
		if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
			return fmt.Errorf("failed to publish %s event: %w", e.Kind, err)
		}
	}
	return nil
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}
