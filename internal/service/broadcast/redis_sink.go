package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes monitoring events on Redis pub/sub channels named
// "sigflow:{channel}". External dashboards subscribe with PSUBSCRIBE sigflow:*.
type RedisSink struct {
	client *redis.Client
	prefix string
}

// NewRedisSink creates a sink over an existing Redis client.
func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, prefix: "sigflow"}
}

func (s *RedisSink) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	env := Envelope{
		Channel:   channel,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := s.client.Publish(ctx, s.prefix+":"+channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
