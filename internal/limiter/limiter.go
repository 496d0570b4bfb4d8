package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/davidwehrlin/tag-master/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultMaxBuckets    = 100000
	DefaultSweepInterval = time.Minute
)

// TokenBucket is the in-process limiter. The bucket table is LRU-bounded and
// every bucket serializes its own refill and consume.
type TokenBucket struct {
	buckets       *lru.Cache[string, *bucket]
	config        RateConfig
	now           func() time.Time
	maxBuckets    int
	idleTTL       time.Duration
	sweepInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	mu            sync.Mutex
}

type Option func(*TokenBucket)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(tb *TokenBucket) { tb.now = now }
}

func WithMaxBuckets(n int) Option {
	return func(tb *TokenBucket) { tb.maxBuckets = n }
}

// WithIdleTTL enables the sweeper. Zero disables it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(tb *TokenBucket) { tb.idleTTL = ttl }
}

func WithSweepInterval(d time.Duration) Option {
	return func(tb *TokenBucket) { tb.sweepInterval = d }
}

func NewTokenBucket(config RateConfig, opts ...Option) (*TokenBucket, error) {
	if config.Capacity < 1 {
		return nil, fmt.Errorf("invalid capacity: %d", config.Capacity)
	}

	tb := &TokenBucket{
		config:        config,
		now:           time.Now,
		maxBuckets:    DefaultMaxBuckets,
		sweepInterval: DefaultSweepInterval,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(tb)
	}

	cache, err := lru.New[string, *bucket](tb.maxBuckets)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket table: %w", err)
	}
	tb.buckets = cache

	if tb.idleTTL > 0 && tb.sweepInterval > 0 {
		go tb.backgroundSweep()
	}
	return tb, nil
}

func (tb *TokenBucket) Config() RateConfig {
	return tb.config
}

func (tb *TokenBucket) Admit(_ context.Context, identifier string) (Decision, error) {
	now := tb.now()
	b := tb.bucketFor(identifier, now)
	allowed, tokens := b.take(tb.config, now)
	return tb.config.decision(allowed, tokens, now), nil
}

// Reset refills the bucket for identifier to capacity.
func (tb *TokenBucket) Reset(_ context.Context, identifier string) error {
	now := tb.now()
	tb.bucketFor(identifier, now).reset(tb.config, now)
	return nil
}

// Len returns the number of buckets currently held.
func (tb *TokenBucket) Len() int {
	return tb.buckets.Len()
}

func (tb *TokenBucket) Stop() error {
	tb.stopOnce.Do(func() { close(tb.stopChan) })
	return nil
}

func (tb *TokenBucket) bucketFor(identifier string, now time.Time) *bucket {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if b, ok := tb.buckets.Get(identifier); ok {
		return b
	}
	b := newBucket(tb.config.Capacity, now)
	tb.buckets.Add(identifier, b)
	return b
}

func (tb *TokenBucket) backgroundSweep() {
	ticker := time.NewTicker(tb.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tb.sweep()
		case <-tb.stopChan:
			return
		}
	}
}

// sweep drops idle buckets and returns how many were removed.
func (tb *TokenBucket) sweep() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	removed := 0
	for _, key := range tb.buckets.Keys() {
		b, ok := tb.buckets.Peek(key)
		if !ok {
			continue
		}
		if b.idle(tb.config, now, tb.idleTTL) {
			tb.buckets.Remove(key)
			removed++
		}
	}
	metrics.RateLimitBuckets.Set(float64(tb.buckets.Len()))
	return removed
}
