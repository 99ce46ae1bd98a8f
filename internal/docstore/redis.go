package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisRelay shares change notifications between processes that use the same
// database file. Local commits are published on a Redis channel; messages from
// other processes are replayed into the local hub.
type RedisRelay struct {
	client  *redis.Client
	hub     *Hub
	channel string
	origin  string
	logger  *slog.Logger
}

type relayMessage struct {
	Origin string   `json:"origin"`
	Topics []string `json:"topics"`
}

func NewRedisRelay(client *redis.Client, hub *Hub, channel string, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		hub:     hub,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

func (r *RedisRelay) Publish(ctx context.Context, topics []string) error {
	payload, err := json.Marshal(relayMessage{Origin: r.origin, Topics: topics})
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and blocks until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var m relayMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		r.logger.Warn("discard relay message", "error", err)
		return
	}
	if m.Origin == r.origin {
		return
	}
	r.hub.Publish(m.Topics...)
}
