package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisFixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	l := NewRedis(client, "reg", 2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("hit %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, err := l.Allow(ctx, "10.0.0.1")
	if err != nil || ok {
		t.Fatalf("third hit should be refused: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("reg:10.0.0.1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
	if ok, _ := l.Allow(ctx, "10.0.0.2"); !ok {
		t.Fatalf("other key should be allowed")
	}

	mr.FastForward(time.Minute + time.Second)
	if ok, _ := l.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatalf("window should have reset")
	}
	left, err := l.Remaining(ctx, "10.0.0.1")
	if err != nil || left != 1 {
		t.Fatalf("Remaining: %d, %v", left, err)
	}
	left, err = l.Remaining(ctx, "fresh")
	if err != nil || left != 2 {
		t.Fatalf("Remaining fresh: %d, %v", left, err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	_, err := NewRedis(client, "login", 1, time.Minute).Allow(context.Background(), "k")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLocalTokenBucket(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocal(rate.Limit(1), 2).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "a"); !ok {
			t.Fatalf("burst hit %d refused", i)
		}
	}
	if ok, _ := l.Allow(ctx, "a"); ok {
		t.Fatalf("expected refusal after burst")
	}
	now = now.Add(time.Second)
	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatalf("expected refill after one second")
	}

	now = now.Add(10 * time.Minute)
	_, _ = l.Allow(ctx, "b")
	if l.Len() != 1 {
		t.Fatalf("idle bucket should be dropped, have %d", l.Len())
	}
}

func TestLocalWindowDisabled(t *testing.T) {
	l := NewLocalWindow(0, time.Minute)
	for i := 0; i < 100; i++ {
		if ok, _ := l.Allow(context.Background(), "x"); !ok {
			t.Fatalf("disabled limiter refused")
		}
	}
	var th Throttle = Unlimited{}
	if ok, _ := th.Allow(context.Background(), "x"); !ok {
		t.Fatalf("Unlimited refused")
	}
}
