package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestSlidingWindowLimiter_AllowWithDetails(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer mr.Close()
		defer client.Close()

		limiter := NewSlidingWindowLimiter(client)
		ctx := context.Background()

		providerID := "provider-1"
		limit := 5

		for i := 0; i < 5; i++ {
			allowed, remaining, resetAt, err := limiter.AllowWithDetails(ctx, providerID, limit)
			require.NoError(t, err)
			assert.True(t, allowed)
			assert.Equal(t, limit-i-1, remaining)
			assert.False(t, resetAt.IsZero())
		}
	})

	t.Run("denies requests over limit", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer mr.Close()
		defer client.Close()

		limiter := NewSlidingWindowLimiter(client)
		ctx := context.Background()

		providerID := "provider-2"
		limit := 3

		for i := 0; i < 3; i++ {
			allowed, _, _, err := limiter.AllowWithDetails(ctx, providerID, limit)
			require.NoError(t, err)
			assert.True(t, allowed)
		}

		allowed, remaining, resetAt, err := limiter.AllowWithDetails(ctx, providerID, limit)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
		assert.False(t, resetAt.IsZero())
	})

	t.Run("unthrottled when limit is zero", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer mr.Close()
		defer client.Close()

		limiter := NewSlidingWindowLimiter(client)
		ctx := context.Background()

		for i := 0; i < 50; i++ {
			allowed, _, _, err := limiter.AllowWithDetails(ctx, "provider-unlimited", 0)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
	})

	t.Run("providers do not share windows", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		defer mr.Close()
		defer client.Close()

		limiter := NewSlidingWindowLimiter(client)
		ctx := context.Background()

		allowed, err := limiter.Allow(ctx, "provider-a", 1)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = limiter.Allow(ctx, "provider-a", 1)
		require.NoError(t, err)
		assert.False(t, allowed)

		allowed, err = limiter.Allow(ctx, "provider-b", 1)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestSlidingWindowLimiter_ConcurrentAdmissions(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewSlidingWindowLimiter(client)
	ctx := context.Background()

	const limit = 10
	const callers = 50

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := limiter.Allow(ctx, "provider-concurrent", limit)
			if err == nil && allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	// At most the limit may succeed within one window under concurrent load.
	assert.Equal(t, int64(limit), admitted.Load())
}

func TestSlidingWindowLimiter_WindowSlides(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewSlidingWindowLimiter(client)
	ctx := context.Background()

	providerID := "provider-slide"

	allowed, err := limiter.Allow(ctx, providerID, 1)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, providerID, 1)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Expire the window key and the next admission succeeds again.
	mr.FastForward(2 * window)

	allowed, err = limiter.Allow(ctx, providerID, 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestSlidingWindowLimiter_CurrentUsageAndReset(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	limiter := NewSlidingWindowLimiter(client)
	ctx := context.Background()

	providerID := "provider-usage"

	for i := 0; i < 4; i++ {
		_, err := limiter.Allow(ctx, providerID, 10)
		require.NoError(t, err)
	}

	usage, err := limiter.CurrentUsage(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), usage)

	require.NoError(t, limiter.Reset(ctx, providerID))

	usage, err = limiter.CurrentUsage(ctx, providerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage)
}

func TestNoopLimiter(t *testing.T) {
	limiter := NewNoopLimiter()
	allowed, err := limiter.Allow(context.Background(), "anything", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}
