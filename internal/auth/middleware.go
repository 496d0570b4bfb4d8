package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/davidwehrlin/tag-master/internal/core"
	"github.com/davidwehrlin/tag-master/internal/logger"
	"github.com/davidwehrlin/tag-master/internal/requestctx"
)

const credentialsError = "Could not validate credentials"

type PlayerFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*core.Player, error)
}

type Authenticator struct {
	tokens  *TokenIssuer
	players PlayerFinder
	logger  logger.Logger
}

func NewAuthenticator(tokens *TokenIssuer, players PlayerFinder, log logger.Logger) *Authenticator {
	return &Authenticator{
		tokens:  tokens,
		players: players,
		logger:  log,
	}
}

// Identify attaches the token subject to the request when a valid bearer
// token is present. It never rejects.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := BearerToken(r); token != "" {
			if claims, err := a.tokens.Parse(token); err == nil {
				r = r.WithContext(requestctx.WithPlayerID(r.Context(), claims.Subject))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Require rejects requests without a valid token for an active player and
// stores the loaded player on the context.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.tokens.Parse(BearerToken(r))
		if err != nil {
			respondUnauthorized(w)
			return
		}

		id, _ := uuid.Parse(claims.Subject)
		player, err := a.players.GetByID(r.Context(), id)
		if err != nil {
			if !errors.Is(err, core.ErrNotFound) {
				a.logger.Errorf("Failed to load player for token: %v", err)
			}
			respondUnauthorized(w)
			return
		}

		ctx := requestctx.WithPlayerID(r.Context(), claims.Subject)
		ctx = requestctx.WithPlayer(ctx, player)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"detail": credentialsError})
}
