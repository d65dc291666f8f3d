package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether a provider call may proceed. Admission checks are
// non-blocking; a denial is handled by the orchestrator like any other
// provider failure (chain advancement), never as a hard error.
type Limiter interface {
	Allow(ctx context.Context, providerID string, limit int) (bool, error)
}

// NoopLimiter admits every request. Used when no Redis is configured.
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(ctx context.Context, providerID string, limit int) (bool, error) {
	return true, nil
}

// SlidingWindowLimiter implements a per-provider sliding one-minute window on
// Redis sorted sets. The check-and-record step runs as a single Lua script so
// concurrent callers across pods never admit more than the limit.
type SlidingWindowLimiter struct {
	client *redis.Client
}

// NewSlidingWindowLimiter creates a new sliding window limiter
func NewSlidingWindowLimiter(client *redis.Client) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client}
}

const window = time.Minute

// admitScript removes expired entries, admits the request only if the window
// still has room, and reports the oldest retained timestamp so callers can
// compute when capacity frees up.
var admitScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local window_start = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)
	local count = redis.call('ZCARD', key)

	local oldest = 0
	local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if head[2] then
		oldest = tonumber(head[2])
	end

	if count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, 120000)
		if oldest == 0 then
			oldest = now
		end
		return {1, limit - count - 1, oldest}
	end

	return {0, 0, oldest}
`)

// Allow checks whether one more call to the provider fits in the current
// window. A non-positive limit means the provider is unthrottled.
func (rl *SlidingWindowLimiter) Allow(ctx context.Context, providerID string, limit int) (bool, error) {
	allowed, _, _, err := rl.AllowWithDetails(ctx, providerID, limit)
	return allowed, err
}

// AllowWithDetails additionally reports the remaining admissions in the
// window and when the window resets.
func (rl *SlidingWindowLimiter) AllowWithDetails(ctx context.Context, providerID string, limit int) (bool, int, time.Time, error) {
	if limit <= 0 {
		return true, -1, time.Time{}, nil
	}

	key := fmt.Sprintf("ratelimit:provider:%s", providerID)
	now := time.Now()
	windowStart := now.Add(-window)
	member := fmt.Sprintf("%d:%d", now.UnixNano(), limit)

	res, err := admitScript.Run(
		ctx,
		rl.client,
		[]string{key},
		limit,
		now.UnixMilli(),
		windowStart.UnixMilli(),
		member,
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	allowed := res[0] == 1
	remaining := int(res[1])
	resetAt := time.UnixMilli(res[2]).Add(window)

	return allowed, remaining, resetAt, nil
}

// CurrentUsage returns the admission count in the provider's current window.
func (rl *SlidingWindowLimiter) CurrentUsage(ctx context.Context, providerID string) (int64, error) {
	key := fmt.Sprintf("ratelimit:provider:%s", providerID)
	windowStart := time.Now().Add(-window)

	if err := rl.client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixMilli())).Err(); err != nil {
		return 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get current usage: %w", err)
	}

	return count, nil
}

// Reset clears the window for a provider.
func (rl *SlidingWindowLimiter) Reset(ctx context.Context, providerID string) error {
	key := fmt.Sprintf("ratelimit:provider:%s", providerID)
	return rl.client.Del(ctx, key).Err()
}
