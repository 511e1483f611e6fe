//go:build integration

package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redisclient.Client {
	t.Helper()

	ctx := context.Background()

	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	container, err := redismodule.Run(ctx, "redis:8.4.0-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis uri: %v", err)
	}

	opt, err := redisclient.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis URL: %v", err)
	}

	client := redisclient.NewClient(opt)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(ctxWithTimeout).Err(); err != nil {
		client.Close()
		t.Fatalf("failed to ping redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})
	return client
}

func TestRedisStore_SlidingWindow(t *testing.T) {
	client := setupRedis(t)
	store := NewRedisStore(client, RateLimitConfig{Quota: 3, Window: time.Minute})

	start := time.UnixMilli(time.Now().UnixMilli())
	store.now = func() time.Time { return start }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := store.Allow(ctx, "203.0.113.7")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3-i-1, res.Remaining)
	}

	res, err := store.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	other, err := store.Allow(ctx, "203.0.113.8")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	store.now = func() time.Time { return start.Add(30 * time.Second) }
	res, err = store.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, res.Allowed, "earlier admissions are still inside the window")
	assert.Equal(t, 30*time.Second, res.RetryAfter)

	card, err := client.ZCard(ctx, "ratelimit:203.0.113.7").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), card, "denied requests do not take a slot")

	store.now = func() time.Time { return start.Add(time.Minute) }
	res, err = store.Allow(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestRedisStore_KeysExpire(t *testing.T) {
	client := setupRedis(t)
	store := NewRedisStore(client, RateLimitConfig{Quota: 1, Window: time.Second})

	ctx := context.Background()
	_, err := store.Allow(ctx, "ttl-client")
	require.NoError(t, err)

	ttl, err := client.PTTL(ctx, "ratelimit:ttl-client").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Second)
}

func TestRedisStore_ClosedClientReturnsError(t *testing.T) {
	client := setupRedis(t)
	store := NewRedisStore(client, RateLimitConfig{Quota: 1, Window: time.Minute})
	require.NoError(t, client.Close())

	_, err := store.Allow(context.Background(), "client")
	require.Error(t, err)
}
