package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/davidwehrlin/tag-master/internal/core"
)

// Memory implements every store interface in process memory. Used for local
// runs with storage=memory and in tests.
type Memory struct {
	players    map[uuid.UUID]*core.Player
	leagues    map[uuid.UUID]*core.League
	seasons    map[uuid.UUID]*core.Season
	rounds     map[uuid.UUID]*core.Round
	assistants map[uuid.UUID]*core.LeagueAssistant
	now        func() time.Time
	mu         sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		players:    make(map[uuid.UUID]*core.Player),
		leagues:    make(map[uuid.UUID]*core.League),
		seasons:    make(map[uuid.UUID]*core.Season),
		rounds:     make(map[uuid.UUID]*core.Round),
		assistants: make(map[uuid.UUID]*core.LeagueAssistant),
		now:        time.Now,
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Close() error {
	return nil
}

func copyPlayer(p *core.Player) *core.Player {
	c := *p
	c.Roles = append([]string(nil), p.Roles...)
	if p.Bio != nil {
		bio := *p.Bio
		c.Bio = &bio
	}
	return &c
}

func (m *Memory) CreatePlayer(_ context.Context, p *core.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.players {
		if strings.EqualFold(existing.Email, p.Email) {
			return core.ErrEmailTaken
		}
	}
	now := m.now()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	m.players[p.ID] = copyPlayer(p)
	return nil
}

func (m *Memory) GetPlayerByID(_ context.Context, id uuid.UUID) (*core.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.players[id]
	if !ok || p.IsDeleted() {
		return nil, core.ErrNotFound
	}
	return copyPlayer(p), nil
}

func (m *Memory) GetPlayerByEmail(_ context.Context, email string) (*core.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.players {
		if strings.EqualFold(p.Email, email) && !p.IsDeleted() {
			return copyPlayer(p), nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *Memory) UpdatePlayer(_ context.Context, id uuid.UUID, upd core.PlayerUpdate) (*core.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok || p.IsDeleted() {
		return nil, core.ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Bio != nil {
		bio := *upd.Bio
		p.Bio = &bio
	}
	if upd.PasswordHash != nil {
		p.PasswordHash = *upd.PasswordHash
	}
	p.UpdatedAt = m.now()
	return copyPlayer(p), nil
}

func (m *Memory) SetPlayerRoles(_ context.Context, id uuid.UUID, roles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok || p.IsDeleted() {
		return core.ErrNotFound
	}
	p.Roles = append([]string(nil), roles...)
	p.UpdatedAt = m.now()
	return nil
}

func (m *Memory) SoftDeletePlayer(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[id]
	if !ok || p.IsDeleted() {
		return core.ErrNotFound
	}
	p.DeletedAt = &at
	p.UpdatedAt = at
	return nil
}

func (m *Memory) ListPlayers(_ context.Context, offset, limit int) ([]*core.Player, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]*core.Player, 0, len(m.players))
	for _, p := range m.players {
		if !p.IsDeleted() {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Name == active[j].Name {
			return active[i].ID.String() < active[j].ID.String()
		}
		return active[i].Name < active[j].Name
	})

	total := len(active)
	if offset >= total {
		return []*core.Player{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := make([]*core.Player, 0, end-offset)
	for _, p := range active[offset:end] {
		page = append(page, copyPlayer(p))
	}
	return page, total, nil
}

func (m *Memory) CountOrganizedLeagues(_ context.Context, playerID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, l := range m.leagues {
		if l.OrganizerID == playerID && l.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateLeague(_ context.Context, l *core.League) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Visibility == "" {
		l.Visibility = core.VisibilityPublic
	}
	l.CreatedAt, l.UpdatedAt = now, now
	c := *l
	m.leagues[l.ID] = &c
	return nil
}

func (m *Memory) GetLeague(_ context.Context, id uuid.UUID) (*core.League, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.leagues[id]
	if !ok || l.DeletedAt != nil {
		return nil, core.ErrNotFound
	}
	c := *l
	return &c, nil
}

// SoftDeleteLeague is used by tests to model removed leagues.
func (m *Memory) SoftDeleteLeague(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leagues[id]
	if !ok || l.DeletedAt != nil {
		return core.ErrNotFound
	}
	l.DeletedAt = &at
	return nil
}

func (m *Memory) IsLeagueAssistant(_ context.Context, playerID, leagueID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.assistants {
		if a.PlayerID == playerID && a.LeagueID == leagueID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) AddLeagueAssistant(_ context.Context, a *core.LeagueAssistant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.assistants {
		if existing.PlayerID == a.PlayerID && existing.LeagueID == a.LeagueID {
			return core.ErrAlreadyAssistant
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = m.now()
	c := *a
	m.assistants[a.ID] = &c
	return nil
}

func (m *Memory) CreateSeason(_ context.Context, s *core.Season) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := m.now()
	s.CreatedAt, s.UpdatedAt = now, now
	c := *s
	m.seasons[s.ID] = &c
	return nil
}

func (m *Memory) GetSeason(_ context.Context, id uuid.UUID) (*core.Season, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.seasons[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *Memory) CreateRound(_ context.Context, r *core.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	c := *r
	m.rounds[r.ID] = &c
	return nil
}

func (m *Memory) GetRound(_ context.Context, id uuid.UUID) (*core.Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rounds[id]
	if !ok || r.DeletedAt != nil {
		return nil, core.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *Memory) SoftDeleteRound(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[id]
	if !ok || r.DeletedAt != nil {
		return core.ErrNotFound
	}
	r.DeletedAt = &at
	r.UpdatedAt = at
	return nil
}
