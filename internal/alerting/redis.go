package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configure the pub/sub sink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisNotifier publishes events as JSON on a Redis channel so that other
// processes (wallet UIs, bots) can subscribe to the vault feed.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier constructs a Redis sink.
func NewRedisNotifier(opts RedisOptions) *RedisNotifier {
	channel := opts.Channel
	if channel == "" {
		channel = "vaultguard:notifications"
	}
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		channel: channel,
	}
}

// Notify publishes event on the configured channel.
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to redis channel %s: %w", n.channel, err)
	}
	return nil
}

// Close releases the client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

func encodeEvent(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}

var _ Notifier = (*RedisNotifier)(nil)
