// Package player holds account business rules: registration, login,
// profile edits, listing and the one-way soft delete.
package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidwehrlin/tag-master/internal/apperror"
	"github.com/davidwehrlin/tag-master/internal/auth"
	"github.com/davidwehrlin/tag-master/internal/core"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	msgEmailTaken = "Email already registered"
)

type Store interface {
	CreatePlayer(ctx context.Context, p *core.Player) error
	GetPlayerByID(ctx context.Context, id uuid.UUID) (*core.Player, error)
	GetPlayerByEmail(ctx context.Context, email string) (*core.Player, error)
	UpdatePlayer(ctx context.Context, id uuid.UUID, upd core.PlayerUpdate) (*core.Player, error)
	SetPlayerRoles(ctx context.Context, id uuid.UUID, roles []string) error
	SoftDeletePlayer(ctx context.Context, id uuid.UUID, at time.Time) error
	ListPlayers(ctx context.Context, offset, limit int) ([]*core.Player, int, error)
	CountOrganizedLeagues(ctx context.Context, playerID uuid.UUID) (int, error)
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Bio      *string
}

// UpdateInput carries optional changes; nil fields are left untouched.
type UpdateInput struct {
	Name     *string
	Bio      *string
	Password *string
}

type Page struct {
	Players []*core.Player
	Total   int
	Page    int
	Size    int
	Pages   int
}

type Service struct {
	store  Store
	hasher auth.Hasher
	now    func() time.Time
}

type Option func(*Service)

func WithHasher(h auth.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		hasher: auth.BcryptHasher{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*core.Player, error) {
	_, err := s.store.GetPlayerByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperror.BadRequest(msgEmailTaken)
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	p := &core.Player{
		Email:         in.Email,
		PasswordHash:  hash,
		Name:          in.Name,
		Bio:           in.Bio,
		Roles:         []string{core.RolePlayer},
		EmailVerified: false,
	}
	if err := s.store.CreatePlayer(ctx, p); err != nil {
		// адрес может держать удаленный аккаунт или параллельная регистрация
		if errors.Is(err, core.ErrEmailTaken) {
			return nil, apperror.BadRequest(msgEmailTaken)
		}
		return nil, fmt.Errorf("create player: %w", err)
	}
	return p, nil
}

// Authenticate returns nil without an error for an unknown email, a wrong
// password or a deleted account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*core.Player, error) {
	p, err := s.store.GetPlayerByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	if p.IsDeleted() || !s.hasher.Verify(password, p.PasswordHash) {
		return nil, nil
	}
	return p, nil
}

// GetByID returns core.ErrNotFound for unknown and soft-deleted players.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*core.Player, error) {
	p, err := s.store.GetPlayerByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsDeleted() {
		return nil, core.ErrNotFound
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*core.Player, error) {
	upd := core.PlayerUpdate{Name: in.Name, Bio: in.Bio}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}

	p, err := s.store.UpdatePlayer(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("update player %s: %w", id, err)
	}
	return p, nil
}

// SoftDelete is refused while the player still organizes active leagues.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.CountOrganizedLeagues(ctx, id)
	if err != nil {
		return fmt.Errorf("count leagues: %w", err)
	}
	if n > 0 {
		return apperror.BadRequest(fmt.Sprintf(
			"Cannot delete account: organizer of %d active league(s). Please delete or transfer leagues first.", n,
		))
	}

	if err := s.store.SoftDeletePlayer(ctx, id, s.now().UTC()); err != nil {
		return fmt.Errorf("delete player %s: %w", id, err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, page, size int) (*Page, error) {
	if page < 1 {
		return nil, apperror.Validation("field page: must be greater than or equal to 1")
	}
	if size < 1 || size > MaxPageSize {
		return nil, apperror.Validation(fmt.Sprintf("field size: must be between 1 and %d", MaxPageSize))
	}

	players, total, err := s.store.ListPlayers(ctx, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return &Page{
		Players: players,
		Total:   total,
		Page:    page,
		Size:    size,
		Pages:   (total + size - 1) / size,
	}, nil
}

// AssignTagMasterRole is idempotent; it is called when a player creates a league.
func (s *Service) AssignTagMasterRole(ctx context.Context, p *core.Player) (*core.Player, error) {
	if p.HasRole(core.RoleTagMaster) {
		return p, nil
	}

	roles := append(append([]string(nil), p.Roles...), core.RoleTagMaster)
	if err := s.store.SetPlayerRoles(ctx, p.ID, roles); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}
	updated := *p
	updated.Roles = roles
	return &updated, nil
}
