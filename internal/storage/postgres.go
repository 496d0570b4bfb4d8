package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/davidwehrlin/tag-master/internal/core"
)

const uniqueViolation = "23505"

type PostgresConfig struct {
	URL      string
	MaxConns int32
}

type Postgres struct {
	pool *pgxpool.Pool
}

func ParsePostgresConfig(cfg PostgresConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error parsing postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	return poolConfig, nil
}

func NewPostgres(ctx context.Context, poolConfig *pgxpool.Config) (*Postgres, error) {
	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Ping runs SELECT 1 with a short timeout.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const playerColumns = `id, email, password_hash, name, bio, roles, email_verified, created_at, updated_at, deleted_at`

func scanPlayer(row pgx.Row) (*core.Player, error) {
	var p core.Player
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.Name,
		&p.Bio,
		&p.Roles,
		&p.EmailVerified,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.DeletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Postgres) CreatePlayer(ctx context.Context, p *core.Player) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO players (id, email, password_hash, name, bio, roles, email_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		p.ID, p.Email, p.PasswordHash, p.Name, p.Bio, p.Roles, p.EmailVerified,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return core.ErrEmailTaken
	}
	return err
}

func (s *Postgres) GetPlayerByID(ctx context.Context, id uuid.UUID) (*core.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1 AND deleted_at IS NULL`
	return scanPlayer(s.pool.QueryRow(ctx, query, id))
}

func (s *Postgres) GetPlayerByEmail(ctx context.Context, email string) (*core.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE lower(email) = lower($1) AND deleted_at IS NULL`
	return scanPlayer(s.pool.QueryRow(ctx, query, email))
}

func (s *Postgres) UpdatePlayer(ctx context.Context, id uuid.UUID, upd core.PlayerUpdate) (*core.Player, error) {
	query := `
		UPDATE players SET
			name = COALESCE($2, name),
			bio = COALESCE($3, bio),
			password_hash = COALESCE($4, password_hash),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + playerColumns
	return scanPlayer(s.pool.QueryRow(ctx, query, id, upd.Name, upd.Bio, upd.PasswordHash))
}

func (s *Postgres) SetPlayerRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET roles = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`,
		id, roles,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Postgres) SoftDeletePlayer(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListPlayers(ctx context.Context, offset, limit int) ([]*core.Player, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM players WHERE deleted_at IS NULL`,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+playerColumns+`
		FROM players
		WHERE deleted_at IS NULL
		ORDER BY name, id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	players := make([]*core.Player, 0, limit)
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, 0, err
		}
		players = append(players, p)
	}
	return players, total, rows.Err()
}

func (s *Postgres) CountOrganizedLeagues(ctx context.Context, playerID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM leagues WHERE organizer_id = $1 AND deleted_at IS NULL`,
		playerID,
	).Scan(&n)
	return n, err
}

func (s *Postgres) CreateLeague(ctx context.Context, l *core.League) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Visibility == "" {
		l.Visibility = core.VisibilityPublic
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO leagues (id, name, description, rules, visibility, organizer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, l.ID, l.Name, l.Description, l.Rules, string(l.Visibility), l.OrganizerID,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (s *Postgres) GetLeague(ctx context.Context, id uuid.UUID) (*core.League, error) {
	var (
		l          core.League
		visibility string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, rules, visibility::text, organizer_id, created_at, updated_at, deleted_at
		FROM leagues
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(
		&l.ID, &l.Name, &l.Description, &l.Rules, &visibility, &l.OrganizerID,
		&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	l.Visibility = core.Visibility(visibility)
	return &l, nil
}

func (s *Postgres) IsLeagueAssistant(ctx context.Context, playerID, leagueID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM league_assistants WHERE player_id = $1 AND league_id = $2
		)
	`, playerID, leagueID).Scan(&exists)
	return exists, err
}

func (s *Postgres) AddLeagueAssistant(ctx context.Context, a *core.LeagueAssistant) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO league_assistants (id, player_id, league_id, assigned_by_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, a.ID, a.PlayerID, a.LeagueID, a.AssignedByID).Scan(&a.CreatedAt)
	if isUniqueViolation(err) {
		return core.ErrAlreadyAssistant
	}
	return err
}

func (s *Postgres) CreateSeason(ctx context.Context, season *core.Season) error {
	if season.ID == uuid.Nil {
		season.ID = uuid.New()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO seasons (id, name, league_id, start_date, end_date, registration_open_date, registration_close_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, season.ID, season.Name, season.LeagueID, season.StartDate, season.EndDate,
		season.RegistrationOpenDate, season.RegistrationCloseDate,
	).Scan(&season.CreatedAt, &season.UpdatedAt)
}

func (s *Postgres) GetSeason(ctx context.Context, id uuid.UUID) (*core.Season, error) {
	var season core.Season
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, league_id, start_date, end_date, registration_open_date,
			registration_close_date, created_at, updated_at
		FROM seasons
		WHERE id = $1
	`, id).Scan(
		&season.ID, &season.Name, &season.LeagueID, &season.StartDate, &season.EndDate,
		&season.RegistrationOpenDate, &season.RegistrationCloseDate,
		&season.CreatedAt, &season.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &season, nil
}

func (s *Postgres) CreateRound(ctx context.Context, r *core.Round) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO rounds (id, season_id, creator_id, date, course_name, location, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7::time)
		RETURNING created_at, updated_at
	`, r.ID, r.SeasonID, r.CreatorID, r.Date, r.CourseName, r.Location, r.StartTime,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
}

func (s *Postgres) GetRound(ctx context.Context, id uuid.UUID) (*core.Round, error) {
	var r core.Round
	err := s.pool.QueryRow(ctx, `
		SELECT id, season_id, creator_id, date, course_name, location,
			to_char(start_time, 'HH24:MI'), created_at, updated_at, deleted_at
		FROM rounds
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(
		&r.ID, &r.SeasonID, &r.CreatorID, &r.Date, &r.CourseName, &r.Location,
		&r.StartTime, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (s *Postgres) SoftDeleteRound(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rounds SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
