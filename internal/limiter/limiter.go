// Package limiter throttles requests per key. Redis backs the shared
// fixed-window counters; Local keeps token buckets in process.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("limiter unavailable")

// Throttle decides whether one more hit for key is allowed.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Redis is a fixed-window counter: INCR, then EXPIRE on the first hit.
type Redis struct {
	client redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

// NewRedis allows max hits per window for each key under prefix.
func NewRedis(client redis.UniversalClient, prefix string, max int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *Redis) key(key string) string {
	return l.prefix + ":" + key
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if l.max <= 0 {
		return true, nil
	}
	count, err := l.client.Incr(ctx, l.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, l.key(key), l.window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count <= l.max, nil
}

// Remaining reports how many hits are left in the current window.
func (l *Redis) Remaining(ctx context.Context, key string) (int64, error) {
	count, err := l.client.Get(ctx, l.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return l.max, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return max(l.max-count, 0), nil
}

// Local is a per-key token bucket refilled at limit with the given burst.
// Buckets idle for longer than ttl are dropped on the next call.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocal builds a token bucket limiter.
func NewLocal(limit rate.Limit, burst int) *Local {
	return &Local{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   burst,
		ttl:     5 * time.Minute,
		now:     time.Now,
	}
}

// NewLocalWindow approximates max hits per window with a token bucket.
func NewLocalWindow(max int, window time.Duration) *Local {
	if max <= 0 || window <= 0 {
		return NewLocal(rate.Inf, 0)
	}
	l := NewLocal(rate.Every(window/time.Duration(max)), max)
	if window > l.ttl {
		l.ttl = window
	}
	return l
}

// WithClock overrides the time source.
func (l *Local) WithClock(now func() time.Time) *Local {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	if l.limit == rate.Inf {
		return true, nil
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.ttl {
			delete(l.buckets, k)
		}
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1), nil
}

// Len returns the number of tracked keys.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Unlimited never refuses.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
