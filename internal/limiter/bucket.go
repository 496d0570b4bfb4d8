package limiter

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
}

func newBucket(capacity int64, now time.Time) *bucket {
	return &bucket{
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

// take refills lazily and consumes one token if at least one is available.
// It returns the admission result and the tokens left afterwards.
func (b *bucket) take(cfg RateConfig, now time.Time) (bool, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(cfg, now)
	if b.tokens < 1.0 {
		return false, b.tokens
	}
	b.tokens -= 1.0
	return true, b.tokens
}

func (b *bucket) reset(cfg RateConfig, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens = float64(cfg.Capacity)
	b.lastRefill = now
}

// refill must be called with b.mu held. A clock that went backwards adds nothing.
func (b *bucket) refill(cfg RateConfig, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * cfg.RefillRate
	if b.tokens > float64(cfg.Capacity) {
		b.tokens = float64(cfg.Capacity)
	}
	b.lastRefill = now
}

// idle reports whether the bucket has been untouched for ttl and would be
// full by now, so dropping it cannot change any future decision.
func (b *bucket) idle(cfg RateConfig, now time.Time, ttl time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	since := now.Sub(b.lastRefill)
	if since < ttl {
		return false
	}
	return b.tokens+since.Seconds()*cfg.RefillRate >= float64(cfg.Capacity)
}

func (b *bucket) snapshot() (float64, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, b.lastRefill
}
