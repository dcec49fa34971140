package throttle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T, limit int, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	limiter, err := NewRedisLimiter("redis://"+s.Addr(), limit, window)
	if err != nil {
		t.Fatalf("failed to create redis limiter: %v", err)
	}
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter, s
}

func TestNewRedisLimiterRejectsBadURL(t *testing.T) {
	if _, err := NewRedisLimiter("not a url", 1, time.Minute); err == nil {
		t.Fatal("expected invalid url to fail")
	}
}

func TestRedisLimiterFixedWindow(t *testing.T) {
	limiter, s := setupTestRedis(t, 3, time.Hour)
	ctx := context.Background()

	if err := limiter.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if result.Remaining != 2-i {
			t.Errorf("expected %d remaining, got %d", 2-i, result.Remaining)
		}
	}

	result, err := limiter.Allow(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("fourth request should be refused")
	}
	if result.RetryAfter <= 0 || result.RetryAfter > time.Hour {
		t.Errorf("unexpected retry after %v", result.RetryAfter)
	}

	other, err := limiter.Allow(ctx, "198.51.100.1")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !other.Allowed {
		t.Error("limits are per key")
	}

	s.FastForward(time.Hour + time.Second)
	result, err = limiter.Allow(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !result.Allowed {
		t.Error("window should have reset")
	}
}

func TestRedisLimiterUsesPrefixedKeys(t *testing.T) {
	limiter, s := setupTestRedis(t, 5, time.Minute)
	if _, err := limiter.Allow(context.Background(), "client"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !s.Exists("submit-limit:client") {
		t.Fatal("expected submit-limit:client key to exist")
	}
	if ttl := s.TTL("submit-limit:client"); ttl != time.Minute {
		t.Errorf("expected ttl of one minute, got %v", ttl)
	}
}

func TestLocalLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLocalLimiter(2, time.Hour)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "client")
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	result, err := limiter.Allow(ctx, "client")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("third request should be refused")
	}
	if diff := result.RetryAfter - 30*time.Minute; diff < -time.Second || diff > time.Second {
		t.Errorf("expected retry after about 30m, got %v", result.RetryAfter)
	}

	other, _ := limiter.Allow(ctx, "someone-else")
	if !other.Allowed {
		t.Error("limits are per key")
	}

	now = now.Add(31 * time.Minute)
	result, _ = limiter.Allow(ctx, "client")
	if !result.Allowed {
		t.Error("a token should have refilled")
	}
}

func TestLocalLimiterEvictsRefilledBuckets(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	limiter := NewLocalLimiter(2, time.Hour)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"idle", "busy"} {
		if _, err := limiter.Allow(ctx, key); err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
	}

	now = start.Add(50 * time.Minute)
	if _, err := limiter.Allow(ctx, "busy"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if size := limiter.Size(); size != 2 {
		t.Fatalf("expected no sweep inside the window, got %d keys", size)
	}

	now = start.Add(time.Hour)
	if _, err := limiter.Allow(ctx, "new"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if size := limiter.Size(); size != 2 {
		t.Fatalf("expected the idle key to be dropped, got %d keys", size)
	}
	if _, ok := limiter.buckets["idle"]; ok {
		t.Error("idle bucket should have been evicted")
	}
	if _, ok := limiter.buckets["busy"]; !ok {
		t.Error("a partly drained bucket must be kept")
	}
}

func TestLocalLimiterManyKeysStayBounded(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLocalLimiter(5, time.Minute)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if _, err := limiter.Allow(ctx, fmt.Sprintf("198.51.100.%d", i)); err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
	}
	now = now.Add(10 * time.Minute)
	if _, err := limiter.Allow(ctx, "198.51.100.200"); err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if size := limiter.Size(); size != 1 {
		t.Fatalf("expected refilled keys to be dropped, got %d", size)
	}
}
