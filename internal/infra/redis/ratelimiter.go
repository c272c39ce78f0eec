package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/burakkarakan/letter-engine/internal/ratelimit"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerWindow = 60
	window                = time.Minute
	backoffStep           = 250 * time.Millisecond
	backoffMax            = 2 * time.Second
)

// slidingWindowScript keeps one ZSET member per accepted send, scored by
// send time in milliseconds. Members older than the window are trimmed,
// the count is compared against the limit, and on success the new member
// is recorded atomically.
var slidingWindowScript = goredis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[1]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[3], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed rolling-window rate limiter backed by
// Redis. No more than limitPerWindow operations are admitted for a key
// within any 60-second window, across all workers sharing the Redis.
type RedisRateLimiter struct {
	client *goredis.Client
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	member func() string
	script *goredis.Script
}

func NewRedisRateLimiter(client *goredis.Client) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, time.Now, sleepWithContext, uuid.NewString)
}

func newRedisRateLimiter(
	client *goredis.Client,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
	memberFn func() string,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}
	if memberFn == nil {
		memberFn = uuid.NewString
	}

	return &RedisRateLimiter{
		client: client,
		now:    nowFn,
		sleep:  sleepFn,
		member: memberFn,
		script: slidingWindowScript,
	}, nil
}

func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limitPerWindow int) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedKey := strings.TrimSpace(key)
	if normalizedKey == "" {
		return false, fmt.Errorf("rate limit key is required")
	}
	if limitPerWindow <= 0 {
		limitPerWindow = defaultLimitPerWindow
	}

	if ctx == nil {
		ctx = context.Background()
	}

	nowMillis := r.now().UTC().UnixMilli()
	redisKey := fmt.Sprintf("ratelimit:%s", normalizedKey)
	result, err := r.script.Run(ctx, r.client, []string{redisKey},
		limitPerWindow,
		nowMillis-window.Milliseconds(),
		nowMillis,
		r.member(),
		window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

func (r *RedisRateLimiter) Wait(ctx context.Context, key string, limitPerWindow int) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, key, limitPerWindow)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
