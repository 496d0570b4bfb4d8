// Package permissions decides whether a player may administer a league or round.
//
// A missing link in the round -> season -> league chain resolves to "cannot
// manage" rather than an error, so callers cannot tell a missing entity from a
// forbidden one. Only storage failures are returned as errors. Organizer
// rights need a live league; assistant assignments are honoured even after
// the league is soft-deleted.
package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/core"
)

const (
	msgManageLeague = "You do not have permission to manage this league"
	msgManageRound  = "You do not have permission to manage this round"
)

// LeagueReader is the read side of league storage used for permission checks.
type LeagueReader interface {
	GetLeague(ctx context.Context, id uuid.UUID) (*core.League, error)
	IsLeagueAssistant(ctx context.Context, playerID, leagueID uuid.UUID) (bool, error)
	GetSeason(ctx context.Context, id uuid.UUID) (*core.Season, error)
	GetRound(ctx context.Context, id uuid.UUID) (*core.Round, error)
}

type Resolver struct {
	store LeagueReader
}

func NewResolver(store LeagueReader) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) CanManageLeague(ctx context.Context, player *core.Player, leagueID uuid.UUID) (bool, error) {
	if player == nil {
		return false, nil
	}

	// организатор считается только у живой лиги, назначение ассистента
	// переживает удаление лиги
	league, err := r.store.GetLeague(ctx, leagueID)
	switch {
	case errors.Is(err, core.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("load league %s: %w", leagueID, err)
	case league.DeletedAt == nil && league.OrganizerID == player.ID:
		return true, nil
	}

	ok, err := r.store.IsLeagueAssistant(ctx, player.ID, leagueID)
	if err != nil {
		return false, fmt.Errorf("check assistant for league %s: %w", leagueID, err)
	}
	return ok, nil
}

func (r *Resolver) CanManageRound(ctx context.Context, player *core.Player, roundID uuid.UUID) (bool, error) {
	if player == nil {
		return false, nil
	}

	round, err := r.store.GetRound(ctx, roundID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load round %s: %w", roundID, err)
	}
	if round.DeletedAt != nil {
		return false, nil
	}

	season, err := r.store.GetSeason(ctx, round.SeasonID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("load season %s: %w", round.SeasonID, err)
	}

	return r.CanManageLeague(ctx, player, season.LeagueID)
}

// IsTagMasterOrAssistant requires both the TagMaster role and a management
// relation to this particular league.
func (r *Resolver) IsTagMasterOrAssistant(ctx context.Context, player *core.Player, leagueID uuid.UUID) (bool, error) {
	if !player.HasRole(core.RoleTagMaster) {
		return false, nil
	}
	return r.CanManageLeague(ctx, player, leagueID)
}

func (r *Resolver) RequireLeagueManager(ctx context.Context, player *core.Player, leagueID uuid.UUID) error {
	ok, err := r.CanManageLeague(ctx, player, leagueID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Authorization(msgManageLeague)
	}
	return nil
}

func (r *Resolver) RequireRoundManager(ctx context.Context, player *core.Player, roundID uuid.UUID) error {
	ok, err := r.CanManageRound(ctx, player, roundID)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Authorization(msgManageRound)
	}
	return nil
}
