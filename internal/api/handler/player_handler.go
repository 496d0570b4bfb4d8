package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/core"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/player"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

const msgPlayerNotFound = "Player not found"

type PlayerHandler struct {
	responder
	players *player.Service
}

func NewPlayerHandler(players *player.Service, log logger.Logger) *PlayerHandler {
	return &PlayerHandler{
		responder: responder{logger: log},
		players:   players,
	}
}

type UpdatePlayerRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=255,notblank"`
	Bio      *string `json:"bio" validate:"omitempty,max=1000"`
	Password *string `json:"password" validate:"omitempty,min=8,password"`
}

type PlayerResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Bio           *string   `json:"bio"`
	Roles         []string  `json:"roles"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type PlayerListResponse struct {
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	Size    int              `json:"size"`
	Pages   int              `json:"pages"`
	Players []PlayerResponse `json:"players"`
}

func toPlayerResponse(p *core.Player) PlayerResponse {
	return PlayerResponse{
		ID:            p.ID,
		Email:         p.Email,
		Name:          p.Name,
		Bio:           p.Bio,
		Roles:         p.Roles,
		EmailVerified: p.EmailVerified,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// RegisterRoutes mounts player endpoints; every one of them needs a valid token.
func (h *PlayerHandler) RegisterRoutes(router *mux.Router, requireAuth func(http.Handler) http.Handler) {
	router.Handle("/players/me", requireAuth(http.HandlerFunc(h.getMe))).Methods("GET")
	router.Handle("/players/me", requireAuth(http.HandlerFunc(h.updateMe))).Methods("PUT")
	router.Handle("/players/me", requireAuth(http.HandlerFunc(h.deleteMe))).Methods("DELETE")
	router.Handle("/players", requireAuth(http.HandlerFunc(h.listPlayers))).Methods("GET")
	router.Handle("/players/{id}", requireAuth(http.HandlerFunc(h.getPlayer))).Methods("GET")
}

func (h *PlayerHandler) getMe(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, toPlayerResponse(requestctx.Player(r.Context())))
}

func (h *PlayerHandler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlayerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
	}

	current := requestctx.Player(r.Context())
	updated, err := h.players.Update(r.Context(), current.ID, player.UpdateInput{
		Name:     req.Name,
		Bio:      req.Bio,
		Password: req.Password,
	})
	if errors.Is(err, core.ErrNotFound) {
		h.respondError(w, r, apperror.NotFound(msgPlayerNotFound))
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, toPlayerResponse(updated))
}

func (h *PlayerHandler) deleteMe(w http.ResponseWriter, r *http.Request) {
	current := requestctx.Player(r.Context())
	if err := h.players.SoftDelete(r.Context(), current.ID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			err = apperror.NotFound(msgPlayerNotFound)
		}
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlayerHandler) listPlayers(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	size, err := queryInt(r, "size", player.DefaultPageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	result, err := h.players.List(r.Context(), page, size)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := PlayerListResponse{
		Total:   result.Total,
		Page:    result.Page,
		Size:    result.Size,
		Pages:   result.Pages,
		Players: make([]PlayerResponse, 0, len(result.Players)),
	}
	for _, p := range result.Players {
		resp.Players = append(resp.Players, toPlayerResponse(p))
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *PlayerHandler) getPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	p, err := h.players.GetByID(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		h.respondError(w, r, apperror.NotFound(msgPlayerNotFound))
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toPlayerResponse(p))
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.Validation("field " + name + ": must be an integer")
	}
	return n, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, apperror.Validation("field " + name + ": must be a valid UUID")
	}
	return id, nil
}
