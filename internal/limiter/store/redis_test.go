package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/davidwehrlin/tag-master/internal/limiter"
	"github.com/redis/go-redis/v9"
	"gopkg.in/go-playground/assert.v1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisBucket_BurstRefillReset(t *testing.T) {
	_, client := newRedis(t)
	clock := &testClock{now: time.Unix(1700000000, 0)}
	b := NewRedisBucket(client, limiter.PerMinute(50), WithRedisClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		d, err := b.Admit(ctx, "ip:10.0.0.5")
		if err != nil {
			t.Fatalf("Admit: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}

	d, err := b.Admit(ctx, "ip:10.0.0.5")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, d.Allowed)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Equal(t, int64(50), d.Limit)

	clock.Advance(1500 * time.Millisecond)
	d, _ = b.Admit(ctx, "ip:10.0.0.5")
	assert.Equal(t, true, d.Allowed)
	d, _ = b.Admit(ctx, "ip:10.0.0.5")
	assert.Equal(t, false, d.Allowed)

	// другой идентификатор не затронут
	d, _ = b.Admit(ctx, "ip:10.0.0.6")
	assert.Equal(t, true, d.Allowed)
	assert.Equal(t, int64(49), d.Remaining)

	if err := b.Reset(ctx, "ip:10.0.0.5"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	d, _ = b.Admit(ctx, "ip:10.0.0.5")
	assert.Equal(t, true, d.Allowed)
	assert.Equal(t, int64(49), d.Remaining)
}

func TestRedisBucket_KeyExpires(t *testing.T) {
	mr, client := newRedis(t)
	clock := &testClock{now: time.Unix(1700000000, 0)}
	b := NewRedisBucket(client, limiter.PerMinute(60), WithRedisClock(clock.Now), WithKeyPrefix("rl:"))

	if _, err := b.Admit(context.Background(), "user:abc"); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	assert.Equal(t, true, mr.Exists("rl:user:abc"))
	assert.Equal(t, 61*time.Second, mr.TTL("rl:user:abc"))

	mr.FastForward(62 * time.Second)
	assert.Equal(t, false, mr.Exists("rl:user:abc"))
}

func TestRedisBucket_Unavailable(t *testing.T) {
	mr, client := newRedis(t)
	b := NewRedisBucket(client, limiter.PerMinute(10))
	mr.Close()

	if _, err := b.Admit(context.Background(), "ip:1.2.3.4"); err == nil {
		t.Errorf("expected error when redis is down")
	}
}

func TestRedisStats_Record(t *testing.T) {
	mr, client := newRedis(t)
	s := NewRedisStats(client, WithStatsPrefix("stats:"))
	at := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	ctx := context.Background()

	events := []limiter.StatsEvent{
		{Identifier: "ip:1", Allowed: true, Method: "GET", Path: "/api/v1/players", At: at},
		{Identifier: "ip:1", Allowed: true, Method: "GET", Path: "/api/v1/players", At: at},
		{Identifier: "ip:1", Allowed: false, Method: "GET", Path: "/api/v1/players", At: at},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	assert.Equal(t, "stats:total", s.TotalKey())
	assert.Equal(t, "2", mr.HGet("stats:total", "allowed"))
	assert.Equal(t, "1", mr.HGet("stats:total", "denied"))
	assert.Equal(t, "stats:minute:202406011230", s.MinuteKey(at))
	assert.Equal(t, "2", mr.HGet(s.MinuteKey(at), "allowed"))
	assert.Equal(t, 24*time.Hour, mr.TTL(s.MinuteKey(at)))
	assert.Equal(t, "stats:route:20240601", s.RouteKey(at))
	assert.Equal(t, "1", mr.HGet("stats:route:20240601", "GET /api/v1/players:denied"))
	assert.Equal(t, 24*time.Hour, mr.TTL(s.RouteKey(at)))
}

func TestRedisStats_RouteFieldsBounded(t *testing.T) {
	mr, client := newRedis(t)
	s := NewRedisStats(client, WithStatsPrefix("stats"), WithStatsTTL(time.Hour))
	at := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		ev := limiter.StatsEvent{
			Identifier: "ip:1",
			Allowed:    true,
			Method:     "GET",
			Path:       "/api/v1/leagues/" + uuid.NewString(),
			At:         at,
		}
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	fields, err := client.HGetAll(ctx, s.RouteKey(at)).Result()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, map[string]string{"GET /api/v1/leagues/{id}:allowed": "20"}, fields)
	assert.Equal(t, time.Hour, mr.TTL(s.RouteKey(at)))

	// на следующий день счетчики идут в новый ключ
	next := at.Add(24 * time.Hour)
	assert.Equal(t, "stats:route:20240602", s.RouteKey(next))
}

func TestRoutePattern(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/players", "/api/v1/players"},
		{"/api/v1/leagues/" + id + "/assistants", "/api/v1/leagues/{id}/assistants"},
		{"/api/v1/players/42", "/api/v1/players/{id}"},
		{"/api/v1/admin/rate-limits/user:" + id + "/reset", "/api/v1/admin/rate-limits/{id}/reset"},
		{"/api/v1/admin/rate-limits/ip:10.0.0.5", "/api/v1/admin/rate-limits/{id}"},
		{"/", "/"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, RoutePattern(tt.path))
		})
	}
}

func TestMemoryStats(t *testing.T) {
	s := NewMemoryStats()
	ctx := context.Background()

	s.Record(ctx, limiter.StatsEvent{Identifier: "user:a", Allowed: true})
	s.Record(ctx, limiter.StatsEvent{Identifier: "user:a", Allowed: false})
	s.Record(ctx, limiter.StatsEvent{Identifier: "user:b", Allowed: true})

	assert.Equal(t, Counts{Allowed: 2, Denied: 1}, s.Total())
	assert.Equal(t, Counts{Allowed: 1, Denied: 1}, s.For("user:a"))
	assert.Equal(t, Counts{}, s.For("user:missing"))
}

func TestMemoryStats_BoundedIdentities(t *testing.T) {
	s := NewMemoryStatsSize(2)
	ctx := context.Background()

	s.Record(ctx, limiter.StatsEvent{Identifier: "ip:1", Allowed: true})
	s.Record(ctx, limiter.StatsEvent{Identifier: "ip:2", Allowed: true})
	s.Record(ctx, limiter.StatsEvent{Identifier: "ip:3", Allowed: false})

	assert.Equal(t, Counts{}, s.For("ip:1"))
	assert.Equal(t, Counts{Denied: 1}, s.For("ip:3"))
	assert.Equal(t, Counts{Allowed: 2, Denied: 1}, s.Total())
}
