package handler

import (
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/auth"
	"github.com/davidwehrlin/tag-master/internal/core"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/player"
)

const msgBadCredentials = "Incorrect email or password"

type AuthHandler struct {
	responder
	players *player.Service
	tokens  *auth.TokenIssuer
}

func NewAuthHandler(players *player.Service, tokens *auth.TokenIssuer, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		responder: responder{logger: log},
		players:   players,
		tokens:    tokens,
	}
}

type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Password string  `json:"password" validate:"required,min=8,password"`
	Name     string  `json:"name" validate:"required,min=2,max=255,notblank"`
	Bio      *string `json:"bio" validate:"omitempty,max=1000"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	PlayerID    uuid.UUID `json:"player_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Roles       []string  `json:"roles"`
}

func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.register).Methods("POST")
	router.HandleFunc("/auth/login", h.login).Methods("POST")
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	p, err := h.players.Register(r.Context(), player.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
		Bio:      req.Bio,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondToken(w, r, http.StatusCreated, p)
}

// login follows the OAuth2 password flow: form fields username and password.
// A JSON body with the same fields is accepted as well.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	req, appErr := readLogin(r)
	if appErr != nil {
		h.respondError(w, r, appErr)
		return
	}

	p, err := h.players.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if p == nil {
		h.respondError(w, r, apperror.Authentication(msgBadCredentials))
		return
	}

	h.respondToken(w, r, http.StatusOK, p)
}

func readLogin(r *http.Request) (*LoginRequest, *apperror.AppError) {
	var req LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == contentTypeJSON {
		if err := decodeAndValidate(r, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, apperror.BadRequest("invalid form data")
	}
	req.Username = r.PostForm.Get("username")
	req.Password = r.PostForm.Get("password")
	if err := validateStruct(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *AuthHandler) respondToken(w http.ResponseWriter, r *http.Request, status int, p *core.Player) {
	token, err := h.tokens.Issue(p)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, status, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		PlayerID:    p.ID,
		Email:       p.Email,
		Name:        p.Name,
		Roles:       p.Roles,
	})
}
