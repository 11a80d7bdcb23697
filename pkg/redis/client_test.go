package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/resilience"
)

// skipIfNoRedis skips the test when Redis is unavailable.
func skipIfNoRedis(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, DB: 15, KeyPrefix: "sis-test"})
	if err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectGivesUpAfterAttempts(t *testing.T) {
	retry := resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}
	c, err := Connect(context.Background(), config.RedisConfig{Addr: "127.0.0.1:1"}, retry)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "redis connect failed after 2 attempts")
}

func TestKeyUsesPrefix(t *testing.T) {
	c := &Client{prefix: DefaultKeyPrefix}
	assert.Equal(t, "sis:generation:/var/idx", c.Key("generation", "/var/idx"))
}

func TestSetIfGreater(t *testing.T) {
	c := skipIfNoRedis(t)
	ctx := context.Background()
	key := c.Key("generation", t.Name())
	require.NoError(t, c.Del(ctx, key))
	t.Cleanup(func() { c.Del(context.Background(), key) })

	ok, err := c.SetIfGreater(ctx, key, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.SetIfGreater(ctx, key, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	_, err = c.Get(ctx, c.Key("missing", t.Name()))
	assert.True(t, IsNilError(err))
}

func TestPublishSubscribe(t *testing.T) {
	c := skipIfNoRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	channel := c.Key("commits", t.Name())

	msgs, err := c.Subscribe(ctx, channel)
	require.NoError(t, err)
	require.NoError(t, c.Publish(ctx, channel, "segments_4"))

	select {
	case m := <-msgs:
		assert.Equal(t, "segments_4", m)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}
