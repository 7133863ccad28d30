package progress

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// newRedisSink connects to REDIS_ADDR and skips the test when it is unset.
func newRedisSink(t *testing.T) *RedisSink {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := DialRedis(ctx, addr)
	require.NoError(t, err)

	suffix := uuid.NewString()
	sink := NewRedisSink(rdb, RedisConfig{
		Stream:  "exercisegrade:test:" + suffix,
		Channel: "exercisegrade:test:solved:" + suffix,
	})
	t.Cleanup(func() {
		_ = rdb.Del(context.Background(), sink.stream).Err()
		_ = rdb.Close()
	})
	return sink
}

func TestRedisSink_NotifyAndHistory(t *testing.T) {
	sink := newRedisSink(t)
	ctx := context.Background()

	ev := NewEvent("s1", "ex-1", "correct", 3)
	require.NoError(t, sink.Notify(ctx, ev))

	history, err := sink.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, ev.ID, history[0].ID)
	require.Equal(t, 3, history[0].Attempts)
}

func TestRedisSink_Subscribe(t *testing.T) {
	sink := newRedisSink(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := sink.Subscribe(ctx)
	require.NoError(t, err)

	ev := NewEvent("s1", "ex-2", "extra_columns", 1)
	require.NoError(t, sink.Notify(ctx, ev))

	select {
	case got := <-events:
		require.Equal(t, ev.ID, got.ID)
		require.Equal(t, "ex-2", got.ExerciseID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}

func TestRedisSink_RejectsInvalid(t *testing.T) {
	sink := NewRedisSink(nil, RedisConfig{})
	require.ErrorIs(t, sink.Notify(context.Background(), Event{}), ErrInvalidEvent)
	require.Equal(t, DefaultStream, sink.stream)
	require.Equal(t, DefaultChannel, sink.channel)
}
