package limiter

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/metrics"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
	"golang.org/x/time/rate"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

var DefaultExemptPaths = []string{"/health", "/metrics"}

type middlewareConfig struct {
	exempt map[string]struct{}
	stats  StatsRecorder
}

type MiddlewareOption func(*middlewareConfig)

// WithExemptPaths replaces the exact-match bypass list.
func WithExemptPaths(paths ...string) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.exempt = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			c.exempt[p] = struct{}{}
		}
	}
}

func WithStats(stats StatsRecorder) MiddlewareOption {
	return func(c *middlewareConfig) { c.stats = stats }
}

func Middleware(limiter RateLimiter, log logger.Logger, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{}
	WithExemptPaths(DefaultExemptPaths...)(cfg)
	for _, opt := range opts {
		opt(cfg)
	}

	// не больше одной записи в секунду о каждом типе события
	rejectLog := &rate.Sometimes{Interval: time.Second}
	failLog := &rate.Sometimes{Interval: time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			identifier := Identifier(r)
			decision, err := limiter.Admit(r.Context(), identifier)
			if err != nil {
				// хранилище недоступно: пропускаем запрос
				metrics.RateLimitDecisions.WithLabelValues("error").Inc()
				failLog.Do(func() {
					log.Warnf("Rate limiter unavailable, admitting request: %v", err)
				})
				next.ServeHTTP(w, r)
				return
			}

			recordStats(r, cfg.stats, identifier, decision.Allowed, log)

			if !decision.Allowed {
				metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
				rejectLog.Do(func() {
					log.Warnf("Rate limit exceeded for %s %s", r.Method, r.URL.Path)
				})
				respondRateLimitExceeded(w, decision.Limit)
				return
			}

			metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
			h := w.Header()
			h.Set(HeaderLimit, strconv.FormatInt(decision.Limit, 10))
			h.Set(HeaderRemaining, strconv.FormatInt(decision.Remaining, 10))
			h.Set(HeaderReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

// Identifier prefers the authenticated player id and falls back to the peer address.
func Identifier(r *http.Request) string {
	if id := requestctx.PlayerID(r.Context()); id != "" {
		return "user:" + id
	}
	if host := clientHost(r); host != "" {
		return "ip:" + host
	}
	return "ip:unknown"
}

func clientHost(r *http.Request) string {
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func recordStats(r *http.Request, stats StatsRecorder, identifier string, allowed bool, log logger.Logger) {
	if stats == nil {
		return
	}
	ev := StatsEvent{
		Identifier: identifier,
		Allowed:    allowed,
		Method:     r.Method,
		Path:       r.URL.Path,
		At:         time.Now(),
	}
	if err := stats.Record(r.Context(), ev); err != nil {
		log.Warnf("Failed to record rate limit stats: %v", err)
	}
}

type rateLimitResponse struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
}

func respondRateLimitExceeded(w http.ResponseWriter, limit int64) {
	retryAfter := int(ResetWindow / time.Second)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(rateLimitResponse{
		Detail:     fmt.Sprintf("Rate limit exceeded. Maximum %d requests per minute.", limit),
		RetryAfter: retryAfter,
	})
}
