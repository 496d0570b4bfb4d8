package limiter

import (
	"context"
	"time"
)

// ResetWindow is the fixed hint used for X-RateLimit-Reset and Retry-After.
const ResetWindow = 60 * time.Second

type RateConfig struct {
	Capacity   int64   `json:"capacity"`
	RefillRate float64 `json:"refill_rate"`
}

// PerMinute builds a config admitting n requests per minute with a burst of n.
func PerMinute(n int64) RateConfig {
	return RateConfig{
		Capacity:   n,
		RefillRate: float64(n) / 60.0,
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

func (c RateConfig) decision(allowed bool, tokens float64, now time.Time) Decision {
	remaining := int64(tokens)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   allowed,
		Limit:     c.Capacity,
		Remaining: remaining,
		ResetAt:   now.Add(ResetWindow),
	}
}

// NewDecision exposes the decision arithmetic to other limiter backends.
func NewDecision(c RateConfig, allowed bool, tokens float64, now time.Time) Decision {
	return c.decision(allowed, tokens, now)
}

type RateLimiter interface {
	Admit(ctx context.Context, identifier string) (Decision, error)
	Reset(ctx context.Context, identifier string) error
	Stop() error
}

type StatsEvent struct {
	Identifier string
	Allowed    bool
	Method     string
	Path       string
	At         time.Time
}

// StatsRecorder persists admission decisions. Failures are best-effort and
// never affect the request.
type StatsRecorder interface {
	Record(ctx context.Context, ev StatsEvent) error
}
