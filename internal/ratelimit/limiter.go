package ratelimit

import "context"

// RateLimiter bounds how many operations run for a key within a rolling
// window. The limit travels with each call because every bulk send carries
// its own rate.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limitPerWindow int) (bool, error)
	Wait(ctx context.Context, key string, limitPerWindow int) error
}
