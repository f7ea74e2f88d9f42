package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"shramsaathi-backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Backplane relays published messages between API instances so subscribers
// connected elsewhere receive them too.
type Backplane interface {
	Publish(ctx context.Context, dest string, body json.RawMessage) error
	// Subscribe calls fn for every message published by other instances until
	// ctx is cancelled.
	Subscribe(ctx context.Context, fn func(dest string, body json.RawMessage)) error
}

type envelope struct {
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
}

// RedisBackplane uses one Redis pub/sub channel. Each instance tags what it
// publishes and skips its own messages on receipt.
type RedisBackplane struct {
	client  *redis.Client
	channel string
	origin  string
}

func NewRedisBackplane(client *redis.Client, channel string) *RedisBackplane {
	return &RedisBackplane{client: client, channel: channel, origin: uuid.NewString()}
}

func (b *RedisBackplane) Publish(ctx context.Context, dest string, body json.RawMessage) error {
	payload, err := json.Marshal(envelope{Origin: b.origin, Destination: dest, Body: body})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

func (b *RedisBackplane) Subscribe(ctx context.Context, fn func(dest string, body json.RawMessage)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", b.channel, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Log.Warn("Dropping malformed backplane message", "error", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			fn(env.Destination, env.Body)
		}
	}
}
