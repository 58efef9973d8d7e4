package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Limiter is a fixed one-second window limiter backed by Redis counters.
type Limiter struct {
	store  counter
	closer func() error
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewLimiter connects to redisAddr and allows requestsPerSecond per key.
func NewLimiter(ctx context.Context, redisAddr string, requestsPerSecond int) (*Limiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "redis connection failed")
	}

	l := newLimiter(client, requestsPerSecond)
	l.closer = client.Close
	return l, nil
}

func newLimiter(c counter, requestsPerSecond int) *Limiter {
	return &Limiter{
		store:  c,
		limit:  requestsPerSecond,
		window: time.Second,
		prefix: "binanceagent:ratelimit",
		now:    time.Now,
	}
}

// Limit is the number of requests allowed per window.
func (l *Limiter) Limit() int { return l.limit }

// Allow checks if a request is allowed for the given key and reports how
// many requests remain in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, l.now().Unix())

	count, err := l.store.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "increment counter")
	}

	// first hit in the window owns the TTL
	if count == 1 {
		if err := l.store.Expire(ctx, redisKey, l.window*2).Err(); err != nil {
			return false, 0, errors.Wrap(err, "set counter expiry")
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return count <= int64(l.limit), remaining, nil
}

// Close releases the redis client when the limiter owns one.
func (l *Limiter) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
