// Package notify fans editorial events out to subscribers. Pushes are
// fire-and-forget: failures are logged, never raised to the caller.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is the notification transport contract.
type Publisher interface {
	Push(ctx context.Context, event string, payload map[string]interface{})
}

// Event is the wire shape published to the channel.
type Event struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"extra,omitempty"`
	Timestamp time.Time              `json:"_created"`
}

// RedisPublisher publishes events onto a redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher builds a publisher on an existing redis client.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "newsdesk:events"
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Push publishes the event; errors are logged and swallowed.
func (p *RedisPublisher) Push(ctx context.Context, event string, payload map[string]interface{}) {
	raw, err := json.Marshal(Event{Event: event, Payload: payload, Timestamp: time.Now().UTC()})
	if err != nil {
		p.logger.Warn("notification marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, raw).Err(); err != nil {
		p.logger.Warn("notification publish failed", zap.String("event", event), zap.Error(err))
	}
}

// Subscribe starts consuming events from the channel, invoking onEvent
// for each decoded message until ctx is cancelled.
func (p *RedisPublisher) Subscribe(ctx context.Context, onEvent func(Event)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok || msg == nil {
					_ = sub.Close()
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					p.logger.Warn("bad notification payload", zap.Error(err))
					continue
				}
				onEvent(event)
			}
		}
	}()
	return nil
}

// Nop is a publisher that drops every event; used when notifications are
// disabled and in tests.
type Nop struct{}

// Push implements Publisher.
func (Nop) Push(context.Context, string, map[string]interface{}) {}

// Recorder captures pushed events for assertions in tests.
type Recorder struct {
	Events []Event
}

// Push implements Publisher.
func (r *Recorder) Push(_ context.Context, event string, payload map[string]interface{}) {
	r.Events = append(r.Events, Event{Event: event, Payload: payload, Timestamp: time.Now().UTC()})
}
