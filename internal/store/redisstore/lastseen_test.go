package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a running Redis on localhost:6379 and are skipped otherwise.

func getTestRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: redis unavailable: %v", err)
	}
	client.FlushDB(ctx)
	return client
}

func TestLastSeenStore_RoundTrip(t *testing.T) {
	client := getTestRedisClient(t)
	defer client.Close()

	store := NewWithClient(client)
	ctx := context.Background()

	got, err := store.LoadLastSeen(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	at := time.Date(2026, 5, 4, 10, 30, 0, 123456000, time.UTC)
	require.NoError(t, store.SaveLastSeen(ctx, "u1", at))

	got, err = store.LoadLastSeen(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, at.Equal(*got))

	ttl, err := client.TTL(ctx, BuildLastSeenKey("u1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestLastSeenStore_KeepsLatest(t *testing.T) {
	client := getTestRedisClient(t)
	defer client.Close()

	store := NewWithClient(client)
	ctx := context.Background()

	newer := time.Date(2026, 5, 4, 10, 31, 0, 0, time.UTC)
	older := newer.Add(-time.Minute)
	require.NoError(t, store.SaveLastSeen(ctx, "u1", newer))
	require.NoError(t, store.SaveLastSeen(ctx, "u1", older))

	got, err := store.LoadLastSeen(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, newer.Equal(*got), "got %v", got)

	latest := newer.Add(time.Second)
	require.NoError(t, store.SaveLastSeen(ctx, "u1", latest))
	got, err = store.LoadLastSeen(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, latest.Equal(*got))
}

func TestBuildLastSeenKey(t *testing.T) {
	assert.Equal(t, "realtime:presence:lastseen:abc", BuildLastSeenKey("abc"))
}
