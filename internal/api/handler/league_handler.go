package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/core"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/permissions"
	"github.com/davidwehrlin/tag-master/internal/player"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

const dateLayout = "2006-01-02"

type LeagueStore interface {
	CreateLeague(ctx context.Context, l *core.League) error
	GetLeague(ctx context.Context, id uuid.UUID) (*core.League, error)
	AddLeagueAssistant(ctx context.Context, a *core.LeagueAssistant) error
	CreateSeason(ctx context.Context, s *core.Season) error
	GetSeason(ctx context.Context, id uuid.UUID) (*core.Season, error)
	CreateRound(ctx context.Context, r *core.Round) error
	SoftDeleteRound(ctx context.Context, id uuid.UUID, at time.Time) error
}

type LeagueHandler struct {
	responder
	store   LeagueStore
	players *player.Service
	perms   *permissions.Resolver
	now     func() time.Time
}

func NewLeagueHandler(store LeagueStore, players *player.Service, perms *permissions.Resolver, log logger.Logger) *LeagueHandler {
	return &LeagueHandler{
		responder: responder{logger: log},
		store:     store,
		players:   players,
		perms:     perms,
		now:       time.Now,
	}
}

type CreateLeagueRequest struct {
	Name        string  `json:"name" validate:"required,max=255,notblank"`
	Description *string `json:"description"`
	Rules       *string `json:"rules"`
	Visibility  string  `json:"visibility" validate:"omitempty,oneof=public private"`
}

type LeagueResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Rules       *string   `json:"rules"`
	Visibility  string    `json:"visibility"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AddAssistantRequest struct {
	PlayerID string `json:"player_id" validate:"required,uuid"`
}

type AssistantResponse struct {
	ID           uuid.UUID `json:"id"`
	PlayerID     uuid.UUID `json:"player_id"`
	LeagueID     uuid.UUID `json:"league_id"`
	AssignedByID uuid.UUID `json:"assigned_by_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateSeasonRequest struct {
	Name                  string  `json:"name" validate:"required,max=255,notblank"`
	StartDate             string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate               *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	RegistrationOpenDate  *string `json:"registration_open_date" validate:"omitempty,datetime=2006-01-02"`
	RegistrationCloseDate *string `json:"registration_close_date" validate:"omitempty,datetime=2006-01-02"`
}

type SeasonResponse struct {
	ID                    uuid.UUID `json:"id"`
	LeagueID              uuid.UUID `json:"league_id"`
	Name                  string    `json:"name"`
	StartDate             string    `json:"start_date"`
	EndDate               *string   `json:"end_date"`
	RegistrationOpenDate  *string   `json:"registration_open_date"`
	RegistrationCloseDate *string   `json:"registration_close_date"`
	CreatedAt             time.Time `json:"created_at"`
}

type CreateRoundRequest struct {
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	CourseName string  `json:"course_name" validate:"required,max=255,notblank"`
	Location   *string `json:"location" validate:"omitempty,max=500"`
	StartTime  *string `json:"start_time" validate:"omitempty,datetime=15:04"`
}

type RoundResponse struct {
	ID         uuid.UUID `json:"id"`
	SeasonID   uuid.UUID `json:"season_id"`
	CreatorID  uuid.UUID `json:"creator_id"`
	Date       string    `json:"date"`
	CourseName string    `json:"course_name"`
	Location   *string   `json:"location"`
	StartTime  *string   `json:"start_time"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *LeagueHandler) RegisterRoutes(router *mux.Router, requireAuth func(http.Handler) http.Handler) {
	router.Handle("/leagues", requireAuth(http.HandlerFunc(h.createLeague))).Methods("POST")
	router.Handle("/leagues/{id}", requireAuth(http.HandlerFunc(h.getLeague))).Methods("GET")
	router.Handle("/leagues/{id}/assistants", requireAuth(http.HandlerFunc(h.addAssistant))).Methods("POST")
	router.Handle("/leagues/{id}/seasons", requireAuth(http.HandlerFunc(h.createSeason))).Methods("POST")
	router.Handle("/seasons/{id}/rounds", requireAuth(http.HandlerFunc(h.createRound))).Methods("POST")
	router.Handle("/rounds/{id}", requireAuth(http.HandlerFunc(h.deleteRound))).Methods("DELETE")
}

// createLeague makes the caller the organizer and grants the TagMaster role.
func (h *LeagueHandler) createLeague(w http.ResponseWriter, r *http.Request) {
	var req CreateLeagueRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	caller := requestctx.Player(r.Context())
	league := &core.League{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Rules:       req.Rules,
		Visibility:  core.Visibility(req.Visibility),
		OrganizerID: caller.ID,
	}
	// сначала роль: при сбое не остается лиги без TagMaster-организатора,
	// а повторное назначение роли идемпотентно
	if _, err := h.players.AssignTagMasterRole(r.Context(), caller); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.store.CreateLeague(r.Context(), league); err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, toLeagueResponse(league))
}

// getLeague hides private leagues from anyone who cannot manage them.
func (h *LeagueHandler) getLeague(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	league, err := h.store.GetLeague(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		h.respondError(w, r, apperror.NotFound("League not found"))
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if league.Visibility == core.VisibilityPrivate {
		ok, err := h.perms.CanManageLeague(r.Context(), requestctx.Player(r.Context()), id)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		if !ok {
			h.respondError(w, r, apperror.NotFound("League not found"))
			return
		}
	}

	h.respondJSON(w, http.StatusOK, toLeagueResponse(league))
}

func (h *LeagueHandler) addAssistant(w http.ResponseWriter, r *http.Request) {
	leagueID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req AddAssistantRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	caller := requestctx.Player(r.Context())
	if err := h.perms.RequireLeagueManager(r.Context(), caller, leagueID); err != nil {
		h.respondError(w, r, err)
		return
	}

	playerID := uuid.MustParse(req.PlayerID)
	if _, err := h.players.GetByID(r.Context(), playerID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			err = apperror.NotFound(msgPlayerNotFound)
		}
		h.respondError(w, r, err)
		return
	}

	assistant := &core.LeagueAssistant{
		PlayerID:     playerID,
		LeagueID:     leagueID,
		AssignedByID: caller.ID,
	}
	if err := h.store.AddLeagueAssistant(r.Context(), assistant); err != nil {
		if errors.Is(err, core.ErrAlreadyAssistant) {
			err = apperror.Conflict("Player is already an assistant of this league")
		}
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, AssistantResponse{
		ID:           assistant.ID,
		PlayerID:     assistant.PlayerID,
		LeagueID:     assistant.LeagueID,
		AssignedByID: assistant.AssignedByID,
		CreatedAt:    assistant.CreatedAt,
	})
}

func (h *LeagueHandler) createSeason(w http.ResponseWriter, r *http.Request) {
	leagueID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req CreateSeasonRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.perms.RequireLeagueManager(r.Context(), requestctx.Player(r.Context()), leagueID); err != nil {
		h.respondError(w, r, err)
		return
	}

	season := &core.Season{
		LeagueID:              leagueID,
		Name:                  strings.TrimSpace(req.Name),
		StartDate:             mustDate(req.StartDate),
		EndDate:               optionalDate(req.EndDate),
		RegistrationOpenDate:  optionalDate(req.RegistrationOpenDate),
		RegistrationCloseDate: optionalDate(req.RegistrationCloseDate),
	}
	if season.EndDate != nil && season.EndDate.Before(season.StartDate) {
		h.respondError(w, r, apperror.Validation("field end_date: must not be before start_date"))
		return
	}
	if season.RegistrationOpenDate != nil && season.RegistrationCloseDate != nil &&
		season.RegistrationCloseDate.Before(*season.RegistrationOpenDate) {
		h.respondError(w, r, apperror.Validation("field registration_close_date: must not be before registration_open_date"))
		return
	}

	if err := h.store.CreateSeason(r.Context(), season); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toSeasonResponse(season))
}

func (h *LeagueHandler) createRound(w http.ResponseWriter, r *http.Request) {
	seasonID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req CreateRoundRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	season, err := h.store.GetSeason(r.Context(), seasonID)
	if errors.Is(err, core.ErrNotFound) {
		h.respondError(w, r, apperror.NotFound("Season not found"))
		return
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	caller := requestctx.Player(r.Context())
	if err := h.perms.RequireLeagueManager(r.Context(), caller, season.LeagueID); err != nil {
		h.respondError(w, r, err)
		return
	}

	round := &core.Round{
		SeasonID:   seasonID,
		CreatorID:  caller.ID,
		Date:       mustDate(req.Date),
		CourseName: strings.TrimSpace(req.CourseName),
		Location:   req.Location,
		StartTime:  req.StartTime,
	}
	if err := h.store.CreateRound(r.Context(), round); err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, toRoundResponse(round))
}

func (h *LeagueHandler) deleteRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := pathUUID(r, "id")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.perms.RequireRoundManager(r.Context(), requestctx.Player(r.Context()), roundID); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.store.SoftDeleteRound(r.Context(), roundID, h.now().UTC()); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			err = apperror.NotFound("Round not found")
		}
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mustDate parses a value already checked by the datetime validator.
func mustDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func optionalDate(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := mustDate(*s)
	return &t
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func toLeagueResponse(l *core.League) LeagueResponse {
	return LeagueResponse{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Rules:       l.Rules,
		Visibility:  string(l.Visibility),
		OrganizerID: l.OrganizerID,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func toSeasonResponse(s *core.Season) SeasonResponse {
	return SeasonResponse{
		ID:                    s.ID,
		LeagueID:              s.LeagueID,
		Name:                  s.Name,
		StartDate:             s.StartDate.Format(dateLayout),
		EndDate:               formatDate(s.EndDate),
		RegistrationOpenDate:  formatDate(s.RegistrationOpenDate),
		RegistrationCloseDate: formatDate(s.RegistrationCloseDate),
		CreatedAt:             s.CreatedAt,
	}
}

func toRoundResponse(r *core.Round) RoundResponse {
	return RoundResponse{
		ID:         r.ID,
		SeasonID:   r.SeasonID,
		CreatorID:  r.CreatorID,
		Date:       r.Date.Format(dateLayout),
		CourseName: r.CourseName,
		Location:   r.Location,
		StartTime:  r.StartTime,
		CreatedAt:  r.CreatedAt,
	}
}
