package jira_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/planning-poker/internal/jira"
)

func setupTestRedis(t *testing.T) (*jira.RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := jira.ConnectRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return jira.NewRedisCache(client), mr
}

func TestRedisCache(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, "story-points-field")
	assert.ErrorIs(t, err, jira.ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "story-points-field", "customfield_10002", time.Minute))

	value, err := cache.Get(ctx, "story-points-field")
	require.NoError(t, err)
	assert.Equal(t, "customfield_10002", value)
	assert.True(t, mr.Exists("planning-poker:jira:story-points-field"))

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, "story-points-field")
	assert.ErrorIs(t, err, jira.ErrCacheMiss)
}

func TestRedisCacheSharedByClients(t *testing.T) {
	cache, mr := setupTestRedis(t)
	f := newFakeJira(t)

	_, err := f.client(cache).SprintIssues(context.Background(), "7")
	require.NoError(t, err)

	// a second instance reads the discovered field from redis
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()
	_, err = f.client(jira.NewRedisCache(other)).SprintIssues(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.fieldCalls.Load())
}

func TestConnectRedisErrors(t *testing.T) {
	_, err := jira.ConnectRedis(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := jira.NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", 20*time.Millisecond))
	value, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	assert.Eventually(t, func() bool {
		_, err := cache.Get(ctx, "k")
		return err == jira.ErrCacheMiss
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, cache.Set(ctx, "forever", "v", 0))
	_, err = cache.Get(ctx, "forever")
	assert.NoError(t, err)
}
