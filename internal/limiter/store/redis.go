package store

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/davidwehrlin/tag-master/internal/limiter"
	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

var bucketScript = redis.NewScript(tokenBucketScript)

const defaultKeyPrefix = "ratelimit:bucket:"

// RedisBucket keeps bucket state in Redis so that every instance shares one
// logical limit. The refill and consume run atomically in a Lua script.
type RedisBucket struct {
	client redis.Cmdable
	config limiter.RateConfig
	prefix string
	now    func() time.Time
}

type RedisOption func(*RedisBucket)

func WithKeyPrefix(prefix string) RedisOption {
	return func(b *RedisBucket) { b.prefix = prefix }
}

func WithRedisClock(now func() time.Time) RedisOption {
	return func(b *RedisBucket) { b.now = now }
}

func NewRedisBucket(client redis.Cmdable, config limiter.RateConfig, opts ...RedisOption) *RedisBucket {
	b := &RedisBucket{
		client: client,
		config: config,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBucket) Admit(ctx context.Context, identifier string) (limiter.Decision, error) {
	now := b.now()
	allowed, tokens, err := b.run(ctx, identifier, now, false)
	if err != nil {
		return limiter.Decision{}, err
	}
	return limiter.NewDecision(b.config, allowed, tokens, now), nil
}

func (b *RedisBucket) Reset(ctx context.Context, identifier string) error {
	_, _, err := b.run(ctx, identifier, b.now(), true)
	return err
}

// Stop is a no-op; the client is owned by the caller.
func (b *RedisBucket) Stop() error {
	return nil
}

func (b *RedisBucket) run(ctx context.Context, identifier string, now time.Time, reset bool) (bool, float64, error) {
	resetArg := 0
	if reset {
		resetArg = 1
	}
	args := []interface{}{
		b.config.Capacity,
		b.config.RefillRate,
		float64(now.UnixNano()) / 1e9,
		b.keyTTL(),
		resetArg,
	}

	res, err := bucketScript.Run(ctx, b.client, []string{b.prefix + identifier}, args...).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis bucket script for %s: %w", identifier, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected redis bucket reply: %v", res)
	}

	allowed, ok := res[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected admission flag type %T", res[0])
	}
	raw, ok := res[1].(string)
	if !ok {
		return false, 0, fmt.Errorf("unexpected token count type %T", res[1])
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false, 0, fmt.Errorf("invalid token count %q: %w", raw, err)
	}
	return allowed == 1, tokens, nil
}

// keyTTL is the time an empty bucket needs to refill completely; an expired
// key and a full bucket are indistinguishable.
func (b *RedisBucket) keyTTL() int64 {
	if b.config.RefillRate <= 0 {
		return int64((24 * time.Hour).Seconds())
	}
	return int64(math.Ceil(float64(b.config.Capacity)/b.config.RefillRate)) + 1
}
