package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Default Redis keys.
const (
	DefaultStream  = "exercisegrade:progress"
	DefaultChannel = "exercisegrade:solved"
)

// RedisConfig configures a RedisSink.
type RedisConfig struct {
	// Stream receives every event through XADD.
	// Default: DefaultStream.
	Stream string

	// Channel receives every event through PUBLISH for live listeners.
	// Default: DefaultChannel.
	Channel string

	// MaxLen caps the stream length approximately. Zero means unbounded.
	MaxLen int64
}

// RedisSink appends events to a Redis stream and broadcasts them on a
// pub/sub channel.
type RedisSink struct {
	client  redis.UniversalClient
	stream  string
	channel string
	maxLen  int64
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink wraps an existing client. The caller owns the client.
func NewRedisSink(client redis.UniversalClient, cfg RedisConfig) *RedisSink {
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	return &RedisSink{
		client:  client,
		stream:  cfg.Stream,
		channel: cfg.Channel,
		maxLen:  cfg.MaxLen,
	}
}

// DialRedis connects to addr and fails fast when the server is unreachable.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Notify records ev with XADD and then publishes it.
func (s *RedisSink) Notify(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event":    data,
			"session":  ev.SessionID,
			"exercise": ev.ExerciseID,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.stream, err)
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}

// Subscribe streams events published on the sink's channel until ctx is done.
func (s *RedisSink) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", s.channel, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// History returns up to count events recorded in the stream, oldest first.
func (s *RedisSink) History(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := s.client.XRangeN(ctx, s.stream, "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrange %s: %w", s.stream, err)
	}
	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["event"].(string)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
