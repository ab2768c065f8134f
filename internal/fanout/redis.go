package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"staffchat/internal/models"
)

// DefaultChannel is the Redis pub/sub channel carrying stored messages.
const DefaultChannel = "staffchat:messages"

// Redis is a Broker backed by Redis pub/sub so replicas share rooms.
type Redis struct {
	client  *redis.Client
	channel string
}

// NewRedis connects to the Redis server at url and verifies it with a ping.
func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisWithClient(c, DefaultChannel), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(c *redis.Client, channel string) *Redis {
	return &Redis{client: c, channel: channel}
}

var _ Broker = (*Redis)(nil)

func (r *Redis) Publish(ctx context.Context, msg models.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, body).Err()
}

func (r *Redis) Subscribe(ctx context.Context, deliver DeliverFunc) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", r.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				slog.WarnContext(ctx, "dropping malformed fanout payload", "channel", r.channel, "error", err)
				continue
			}
			deliver(msg)
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
