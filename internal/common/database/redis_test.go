package database

import (
	"context"
	"testing"
	"time"

	"portfolio-sync/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestRedisClient_Ping(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	mr.Close()
	assert.Error(t, client.Ping(ctx))
}

func TestRedisClient_PublishSubscribe(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "portfolio:test")
	defer sub.Close()

	// wait for the subscription to be acknowledged
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n, err := client.Publish(ctx, "portfolio:test", "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
