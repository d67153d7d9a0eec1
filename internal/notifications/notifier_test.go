package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.PublishUser(context.Background(), 1, "test payload"))
	assert.NoError(t, n.PublishEvent(context.Background(), 1, EventMessageReceived, map[string]int{"id": 1}))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, string) {}))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.PublishEvent(context.Background(), 1, EventRatingReceived, nil))
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "notifications:user:1"},
		{100, "notifications:user:100"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
		id, ok := userFromChannel(tt.expected)
		require.True(t, ok)
		assert.Equal(t, tt.userID, id)
	}
}

func TestNotifier_PublishEventReachesSubscriber(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type received struct{ channel, payload string }
	got := make(chan received, 1)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(channel, payload string) {
		got <- received{channel, payload}
	}))

	require.NoError(t, n.PublishEvent(context.Background(), 7, EventSwapRequestUpdated, map[string]any{"id": 3, "status": "accepted"}))

	select {
	case msg := <-got:
		assert.Equal(t, "notifications:user:7", msg.channel)
		var ev struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.payload), &ev))
		assert.Equal(t, EventSwapRequestUpdated, ev.Type)
		assert.Equal(t, "accepted", ev.Payload["status"])
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
