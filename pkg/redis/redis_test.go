package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitmarket/coachplans/pkg/redis"
)

func setup(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		client, err := redis.Connect(context.Background(), redis.Config{
			ConnectionURL: "redis://" + mr.Addr() + "/0",
			RetryAttempts: 1,
		})
		require.NoError(t, err)
		defer client.Close()
	})

	t.Run("empty url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{})
		assert.ErrorIs(t, err, redis.ErrEmptyConnectionURL)
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()
		_, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: "http://nope"})
		assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
	})
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	mr, client := setup(t)
	check := redis.Healthcheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.ErrorIs(t, check(context.Background()), redis.ErrHealthcheckFailed)
}

func TestLocker(t *testing.T) {
	t.Parallel()

	t.Run("exclusive until released", func(t *testing.T) {
		t.Parallel()
		mr, client := setup(t)
		l := redis.NewLocker(client, "coachplans:")
		ctx := context.Background()

		release, ok, err := l.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, mr.Exists("coachplans:sweep"))

		_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, release(ctx))
		assert.False(t, mr.Exists("coachplans:sweep"))

		_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release does not steal a lock taken over after expiry", func(t *testing.T) {
		t.Parallel()
		mr, client := setup(t)
		l := redis.NewLocker(client, "")
		ctx := context.Background()

		release, ok, err := l.TryLock(ctx, "sweep", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)

		_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, release(ctx))
		assert.True(t, mr.Exists("sweep"))
	})

	t.Run("server down", func(t *testing.T) {
		t.Parallel()
		mr, client := setup(t)
		mr.Close()
		_, _, err := redis.NewLocker(client, "").TryLock(context.Background(), "k", time.Second)
		assert.ErrorIs(t, err, redis.ErrLockFailed)
	})

	t.Run("nil client panics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { redis.NewLocker(nil, "") })
	})
}
