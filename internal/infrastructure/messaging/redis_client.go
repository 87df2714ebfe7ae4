package messaging

import (
	"context"

	cache "github.com/classpoints/points-engine/internal/infrastructure/persistence/redis"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS CLIENT ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// CacheRedisClient adapts the infrastructure cache to the RedisClient
// interface of the event bus.
type CacheRedisClient struct {
	cache *cache.Cache
}

// NewCacheRedisClient wraps a cache client for event bus transport.
func NewCacheRedisClient(c *cache.Cache) *CacheRedisClient {
	return &CacheRedisClient{cache: c}
}

// Publish sends a message to a channel.
func (c *CacheRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.cache.Publish(ctx, channel, message)
}

// Subscribe opens a subscription and pumps messages into a channel until the
// context is cancelled.
func (c *CacheRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	sub := c.cache.Subscribe(ctx, channels...)

	// Confirm the subscription before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases the underlying cache client.
func (c *CacheRedisClient) Close() error {
	return c.cache.Close()
}
