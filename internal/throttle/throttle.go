// Package throttle limits how often one submitter may post to the public
// submission endpoint.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of one Allow call. RetryAfter is set only when the
// request was refused.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// LocalLimiter keeps a token bucket per key in process memory. It is the
// fallback when no Redis is configured and does not share state between
// replicas. Buckets that have refilled completely are dropped once per
// window.
type LocalLimiter struct {
	mu        sync.Mutex
	limit     int
	every     rate.Limit
	window    time.Duration
	buckets   map[string]*rate.Limiter
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalLimiter allows limit requests per window and refills evenly.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &LocalLimiter{
		limit:   limit,
		every:   rate.Every(window / time.Duration(limit)),
		window:  window,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	l.sweep(now)
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.every, l.limit)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	reservation := bucket.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return Result{Allowed: false, RetryAfter: delay}, nil
	}
	return Result{Allowed: true, Remaining: int(bucket.TokensAt(now))}, nil
}

// sweep drops full buckets; a new bucket for the same key would be
// identical. Callers hold l.mu.
func (l *LocalLimiter) sweep(now time.Time) {
	if l.lastSweep.IsZero() {
		l.lastSweep = now
		return
	}
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, bucket := range l.buckets {
		if bucket.TokensAt(now) >= float64(l.limit) {
			delete(l.buckets, key)
		}
	}
}

// Size is the number of keys currently tracked.
func (l *LocalLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
