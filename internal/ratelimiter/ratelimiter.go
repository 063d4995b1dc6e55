// Package ratelimiter provides token-bucket rate limiting keyed by an
// arbitrary string, used to throttle repeated share-grant resolution attempts.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter holds one token bucket per key.
//
// Buckets idle for longer than the eviction window are dropped on the next
// sweep so the map does not grow without bound.
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	buckets  map[string]*bucket
	lastScan time.Time
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing requestsPerSecond sustained attempts per key
// with the given burst. A zero rate disables limiting.
func New(requestsPerSecond float64, burst uint) *KeyedLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst == 0 {
		burst = 1
	}

	return &KeyedLimiter{
		limit:   limit,
		burst:   int(burst),
		idle:    10 * time.Minute,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether one more attempt for key is permitted now.
func (k *KeyedLimiter) Allow(key string) bool {
	if k.limit == rate.Inf {
		return true
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	k.sweep(now)

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *KeyedLimiter) sweep(now time.Time) {
	if now.Sub(k.lastScan) < k.idle {
		return
	}
	k.lastScan = now

	for key, b := range k.buckets {
		if now.Sub(b.lastSeen) > k.idle {
			delete(k.buckets, key)
		}
	}
}
