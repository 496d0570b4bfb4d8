package store

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/davidwehrlin/tag-master/internal/limiter"
)

const DefaultStatsIdentities = 10000

type Counts struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// MemoryStats keeps decision counters in process memory. Per-identifier
// counters are held for the most recently seen identifiers only.
type MemoryStats struct {
	total      Counts
	identities *lru.Cache[string, Counts]
	mu         sync.Mutex
}

func NewMemoryStats() *MemoryStats {
	return NewMemoryStatsSize(DefaultStatsIdentities)
}

func NewMemoryStatsSize(size int) *MemoryStats {
	if size < 1 {
		size = DefaultStatsIdentities
	}
	// ошибка только при size <= 0
	cache, _ := lru.New[string, Counts](size)
	return &MemoryStats{identities: cache}
}

func (s *MemoryStats) Record(_ context.Context, ev limiter.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, _ := s.identities.Get(ev.Identifier)
	if ev.Allowed {
		s.total.Allowed++
		c.Allowed++
	} else {
		s.total.Denied++
		c.Denied++
	}
	s.identities.Add(ev.Identifier, c)
	return nil
}

func (s *MemoryStats) Total() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStats) For(identifier string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, _ := s.identities.Peek(identifier)
	return c
}
