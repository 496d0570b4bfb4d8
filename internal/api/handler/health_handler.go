package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/davidwehrlin/tag-master/internal/logger"
)

const (
	serviceName    = "Disc Golf Tag League API"
	serviceVersion = "1.0.0"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	responder
	db  Pinger
	now func() time.Time
}

func NewHealthHandler(db Pinger, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		responder: responder{logger: log},
		db:        db,
		now:       time.Now,
	}
}

type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Health  string `json:"health"`
	Metrics string `json:"metrics"`
}

type HealthResponse struct {
	Status    string  `json:"status"`
	Database  string  `json:"database"`
	Timestamp float64 `json:"timestamp"`
}

func (h *HealthHandler) RegisterRoutes(root, api *mux.Router) {
	root.HandleFunc("/", h.root).Methods("GET")
	root.HandleFunc("/health", h.health).Methods("GET")
	api.HandleFunc("/health", h.health).Methods("GET")
}

func (h *HealthHandler) root(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, RootResponse{
		Name:    serviceName,
		Version: serviceVersion,
		Health:  "/health",
		Metrics: "/metrics",
	})
}

// health reports 503 when the database does not answer SELECT 1.
func (h *HealthHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: float64(h.now().UnixNano()) / float64(time.Second),
	}
	status := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warnf("Health check failed: %v", err)
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, resp)
}
