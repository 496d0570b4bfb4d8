package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gopkg.in/go-playground/assert.v1"

	"github.com/davidwehrlin/tag-master/internal/core"
)

func newPlayer(email, name string) *core.Player {
	return &core.Player{
		Email:        email,
		PasswordHash: "hash",
		Name:         name,
		Roles:        []string{core.RolePlayer},
	}
}

func TestMemory_PlayerLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := newPlayer("Ann@Example.com", "Ann")
	if err := m.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}

	// email сравнивается без учета регистра
	dup := newPlayer("ann@example.com", "Other")
	if err := m.CreatePlayer(ctx, dup); !errors.Is(err, core.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	got, err := m.GetPlayerByEmail(ctx, "ANN@example.com")
	if err != nil {
		t.Fatalf("GetPlayerByEmail: %v", err)
	}
	assert.Equal(t, p.ID, got.ID)

	// returned copies are detached from the store
	got.Roles[0] = "Mutated"
	again, _ := m.GetPlayerByID(ctx, p.ID)
	assert.Equal(t, []string{core.RolePlayer}, again.Roles)

	name := "Ann Updated"
	bio := "throws forehand"
	updated, err := m.UpdatePlayer(ctx, p.ID, core.PlayerUpdate{Name: &name, Bio: &bio})
	if err != nil {
		t.Fatalf("UpdatePlayer: %v", err)
	}
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, bio, *updated.Bio)
	assert.Equal(t, "hash", updated.PasswordHash)

	if err := m.SetPlayerRoles(ctx, p.ID, []string{core.RolePlayer, core.RoleTagMaster}); err != nil {
		t.Fatalf("SetPlayerRoles: %v", err)
	}
	again, _ = m.GetPlayerByID(ctx, p.ID)
	assert.Equal(t, true, again.HasRole(core.RoleTagMaster))

	if err := m.SoftDeletePlayer(ctx, p.ID, time.Now()); err != nil {
		t.Fatalf("SoftDeletePlayer: %v", err)
	}
	if _, err := m.GetPlayerByID(ctx, p.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted player still visible by id: %v", err)
	}
	if _, err := m.GetPlayerByEmail(ctx, p.Email); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted player still visible by email: %v", err)
	}
	if err := m.SoftDeletePlayer(ctx, p.ID, time.Now()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second delete should report not found, got %v", err)
	}
	if _, err := m.UpdatePlayer(ctx, p.ID, core.PlayerUpdate{Name: &name}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("update of deleted player should fail, got %v", err)
	}

	// адрес удаленного игрока по-прежнему занят
	if err := m.CreatePlayer(ctx, newPlayer("ann@example.com", "Ann")); !errors.Is(err, core.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken for deleted player's email, got %v", err)
	}
}

func TestMemory_ListPlayers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, name := range []string{"Charlie", "alpha", "Bravo", "Delta"} {
		if err := m.CreatePlayer(ctx, newPlayer(name+"@example.com", name)); err != nil {
			t.Fatal(err)
		}
	}
	deleted := newPlayer("gone@example.com", "Aaron")
	m.CreatePlayer(ctx, deleted)
	m.SoftDeletePlayer(ctx, deleted.ID, time.Now())

	tests := []struct {
		name   string
		offset int
		limit  int
		want   []string
	}{
		{"first page", 0, 2, []string{"Bravo", "Charlie"}},
		{"second page", 2, 2, []string{"Delta", "alpha"}},
		{"past the end", 10, 2, []string{}},
		{"everything", 0, 100, []string{"Bravo", "Charlie", "Delta", "alpha"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			players, total, err := m.ListPlayers(ctx, tt.offset, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			assert.Equal(t, 4, total)
			names := make([]string, 0, len(players))
			for _, p := range players {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestMemory_LeaguesAndRounds(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	organizer := newPlayer("org@example.com", "Organizer")
	m.CreatePlayer(ctx, organizer)

	league := &core.League{Name: "Tuesday Tags", OrganizerID: organizer.ID}
	if err := m.CreateLeague(ctx, league); err != nil {
		t.Fatalf("CreateLeague: %v", err)
	}
	assert.Equal(t, core.VisibilityPublic, league.Visibility)

	n, _ := m.CountOrganizedLeagues(ctx, organizer.ID)
	assert.Equal(t, 1, n)

	helper := newPlayer("helper@example.com", "Helper")
	m.CreatePlayer(ctx, helper)

	ok, _ := m.IsLeagueAssistant(ctx, helper.ID, league.ID)
	assert.Equal(t, false, ok)

	a := &core.LeagueAssistant{PlayerID: helper.ID, LeagueID: league.ID, AssignedByID: organizer.ID}
	if err := m.AddLeagueAssistant(ctx, a); err != nil {
		t.Fatalf("AddLeagueAssistant: %v", err)
	}
	ok, _ = m.IsLeagueAssistant(ctx, helper.ID, league.ID)
	assert.Equal(t, true, ok)

	err := m.AddLeagueAssistant(ctx, &core.LeagueAssistant{PlayerID: helper.ID, LeagueID: league.ID})
	if !errors.Is(err, core.ErrAlreadyAssistant) {
		t.Errorf("expected ErrAlreadyAssistant, got %v", err)
	}

	season := &core.Season{LeagueID: league.ID, Name: "2024", StartDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	if err := m.CreateSeason(ctx, season); err != nil {
		t.Fatal(err)
	}
	gotSeason, err := m.GetSeason(ctx, season.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, league.ID, gotSeason.LeagueID)

	round := &core.Round{SeasonID: season.ID, CreatorID: organizer.ID, CourseName: "Maple Hill", Date: season.StartDate}
	if err := m.CreateRound(ctx, round); err != nil {
		t.Fatal(err)
	}
	gotRound, err := m.GetRound(ctx, round.ID)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Maple Hill", gotRound.CourseName)

	if err := m.SoftDeleteRound(ctx, round.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetRound(ctx, round.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted round still visible: %v", err)
	}

	if err := m.SoftDeleteLeague(ctx, league.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetLeague(ctx, league.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleted league still visible: %v", err)
	}
	n, _ = m.CountOrganizedLeagues(ctx, organizer.ID)
	assert.Equal(t, 0, n)

	if _, err := m.GetSeason(ctx, uuid.New()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown season, got %v", err)
	}
}

func TestMemory_Ping(t *testing.T) {
	m := NewMemory()
	assert.Equal(t, nil, m.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
