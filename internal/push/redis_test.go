package push

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-sync/internal/common/database"
	"portfolio-sync/internal/common/logger"
)

func createTestRedisChannel(t *testing.T) (*RedisChannel, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	ch := NewRedisChannel(database.NewRedisFromClient(rdb), "portfolio:push:", `App\Events`, logger.NewTestLogger(t))
	t.Cleanup(func() { ch.Close() })
	return ch, mr
}

type payloadCollector struct {
	mu  sync.Mutex
	got []map[string]interface{}
}

func (c *payloadCollector) handle(p map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, p)
}

func (c *payloadCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func (c *payloadCollector) at(i int) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.got[i]
}

func waitForSubscribers(t *testing.T, mr *miniredis.Miniredis, channel string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(channel)[channel] == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisChannel_Delivers(t *testing.T) {
	ch, mr := createTestRedisChannel(t)
	ctx := context.Background()
	collector := &payloadCollector{}

	require.NoError(t, ch.Listen(ctx, "private-App.Models.User.5", "MessageSent", collector.handle))
	require.NoError(t, ch.Listen(ctx, "messages", ".MessageSent", collector.handle))
	waitForSubscribers(t, mr, "portfolio:push:private-App.Models.User.5", 1)
	waitForSubscribers(t, mr, "portfolio:push:messages", 1)

	// object data
	mr.Publish("portfolio:push:private-App.Models.User.5",
		`{"event":"App\\Events\\MessageSent","data":{"id":7,"name":"Ana"}}`)
	// string-encoded data
	mr.Publish("portfolio:push:messages", `{"event":"MessageSent","data":"{\"id\":8}"}`)
	// wrong event, ignored
	mr.Publish("portfolio:push:messages", `{"event":"Other","data":{}}`)
	// garbage, ignored
	mr.Publish("portfolio:push:messages", `not json`)

	require.Eventually(t, func() bool { return collector.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(7), collector.at(0)["id"])
	assert.Equal(t, float64(8), collector.at(1)["id"])
}

func TestRedisChannel_PublishRoundTrip(t *testing.T) {
	ch, mr := createTestRedisChannel(t)
	ctx := context.Background()
	collector := &payloadCollector{}

	require.NoError(t, ch.Listen(ctx, "messages", "MessageSent", collector.handle))
	waitForSubscribers(t, mr, "portfolio:push:messages", 1)

	require.NoError(t, ch.Publish(ctx, "messages", "MessageSent", map[string]interface{}{"refresh": true}))
	require.Eventually(t, func() bool { return collector.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, true, collector.at(0)["refresh"])
}

func TestRedisChannel_LeaveAndClose(t *testing.T) {
	ch, mr := createTestRedisChannel(t)
	ctx := context.Background()
	noop := func(map[string]interface{}) {}

	require.NoError(t, ch.Listen(ctx, "a", "E", noop))
	require.NoError(t, ch.Listen(ctx, "b", "E", noop))
	waitForSubscribers(t, mr, "portfolio:push:b", 1)

	require.NoError(t, ch.Leave("a"))
	waitForSubscribers(t, mr, "portfolio:push:a", 0)

	require.NoError(t, ch.Close())
	waitForSubscribers(t, mr, "portfolio:push:b", 0)

	err := ch.Listen(ctx, "c", "E", noop)
	assert.Error(t, err)
}

func TestDecodeData(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]interface{}
		wantErr bool
	}{
		{"object", `{"a":1}`, map[string]interface{}{"a": float64(1)}, false},
		{"string", `"{\"a\":1}"`, map[string]interface{}{"a": float64(1)}, false},
		{"null", `null`, map[string]interface{}{}, false},
		{"empty", ``, map[string]interface{}{}, false},
		{"array", `[1]`, nil, true},
		{"bad string", `"nope"`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeData([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
