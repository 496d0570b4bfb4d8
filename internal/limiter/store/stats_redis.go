package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davidwehrlin/tag-master/internal/limiter"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStats aggregates decisions in Redis hashes: a cumulative total, a
// per-minute series and a daily per-route breakdown. Only the total lives
// forever; it holds two fields.
type RedisStats struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

type StatsOption func(*RedisStats)

func WithStatsPrefix(prefix string) StatsOption {
	return func(s *RedisStats) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) StatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

func NewRedisStats(client redis.Cmdable, opts ...StatsOption) *RedisStats {
	s := &RedisStats{
		client: client,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStats) Record(ctx context.Context, ev limiter.StatsEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.TotalKey(), field, 1)

	minuteKey := s.MinuteKey(at)
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	route := strings.TrimSpace(ev.Method + " " + RoutePattern(ev.Path))
	if route != "" {
		routeKey := s.RouteKey(at)
		pipe.HIncrBy(ctx, routeKey, route+":"+field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, routeKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit stats: %w", err)
	}
	return nil
}

func (s *RedisStats) TotalKey() string {
	return s.prefix + ":total"
}

func (s *RedisStats) RouteKey(at time.Time) string {
	return fmt.Sprintf("%s:route:%s", s.prefix, at.UTC().Format("20060102"))
}

// RoutePattern replaces id-like path segments with {id} so that
// /api/v1/leagues/<uuid> and /api/v1/leagues/<other uuid> share a counter.
func RoutePattern(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isIDSegment(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isIDSegment(seg string) bool {
	if seg == "" {
		return false
	}
	if _, err := uuid.Parse(seg); err == nil {
		return true
	}
	// числовые id и идентификаторы вида user:<id>
	if strings.IndexFunc(seg, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
		return true
	}
	return strings.HasPrefix(seg, "user:") || strings.HasPrefix(seg, "ip:")
}

func (s *RedisStats) MinuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}
