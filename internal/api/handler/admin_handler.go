package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/core"
	"github.com/davidwehrlin/tag-master/internal/limiter"
	"github.com/davidwehrlin/tag-master/internal/limiter/store"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

// StatsReader is implemented by process-local decision counters.
type StatsReader interface {
	Total() store.Counts
	For(identifier string) store.Counts
}

type RateLimitStatsResponse struct {
	Identifier string       `json:"identifier"`
	Counts     store.Counts `json:"counts"`
	Total      store.Counts `json:"total"`
}

// AdminHandler exposes operational overrides for TagMasters.
type AdminHandler struct {
	responder
	limiter limiter.RateLimiter
	stats   StatsReader
}

// NewAdminHandler builds the handler; stats may be nil when counters live
// outside the process.
func NewAdminHandler(rl limiter.RateLimiter, stats StatsReader, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		responder: responder{logger: log},
		limiter:   rl,
		stats:     stats,
	}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router, requireAuth func(http.Handler) http.Handler) {
	router.Handle("/admin/rate-limits/{identifier}", requireAuth(http.HandlerFunc(h.rateLimitStats))).Methods("GET")
	router.Handle("/admin/rate-limits/{identifier}/reset", requireAuth(http.HandlerFunc(h.resetRateLimit))).Methods("POST")
}

func (h *AdminHandler) rateLimitStats(w http.ResponseWriter, r *http.Request) {
	identifier, ok := h.adminIdentifier(w, r)
	if !ok {
		return
	}
	if h.stats == nil {
		h.respondError(w, r, apperror.NotFound("Rate limit stats are not available"))
		return
	}

	h.respondJSON(w, http.StatusOK, RateLimitStatsResponse{
		Identifier: identifier,
		Counts:     h.stats.For(identifier),
		Total:      h.stats.Total(),
	})
}

// resetRateLimit refills the bucket of an identifier such as user:<id> or ip:<addr>.
func (h *AdminHandler) resetRateLimit(w http.ResponseWriter, r *http.Request) {
	identifier, ok := h.adminIdentifier(w, r)
	if !ok {
		return
	}
	caller := requestctx.Player(r.Context())

	if err := h.limiter.Reset(r.Context(), identifier); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.logger.Infof("Rate limit reset: identifier=%s by=%s", identifier, caller.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) adminIdentifier(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !requestctx.Player(r.Context()).HasRole(core.RoleTagMaster) {
		h.respondError(w, r, apperror.Authorization(""))
		return "", false
	}

	identifier := mux.Vars(r)["identifier"]
	if !strings.HasPrefix(identifier, "user:") && !strings.HasPrefix(identifier, "ip:") {
		h.respondError(w, r, apperror.Validation("field identifier: must start with user: or ip:"))
		return "", false
	}
	return identifier, true
}
