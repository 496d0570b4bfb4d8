package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/davidwehrlin/tag-master/internal/logger"
)

type Migration struct {
	Version string
	Up      func(*sql.Tx) error
}

func execSQL(query string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		_, err := tx.Exec(query)
		return err
	}
}

var migrations = []Migration{
	{
		Version: "2024060101",
		Up: execSQL(`
			CREATE TABLE IF NOT EXISTS players (
				id UUID PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				bio VARCHAR(1000),
				roles VARCHAR[] NOT NULL DEFAULT '{"Player"}',
				email_verified BOOLEAN NOT NULL DEFAULT false,
				deleted_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_player_email ON players (email);
			CREATE INDEX IF NOT EXISTS idx_player_deleted ON players (deleted_at);
		`),
	},
	{
		Version: "2024060102",
		Up: execSQL(`
			DO $$ BEGIN
				CREATE TYPE league_visibility AS ENUM ('public', 'private');
			EXCEPTION WHEN duplicate_object THEN NULL;
			END $$;

			CREATE TABLE IF NOT EXISTS leagues (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				rules TEXT,
				visibility league_visibility NOT NULL DEFAULT 'public',
				organizer_id UUID NOT NULL REFERENCES players (id),
				deleted_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_league_organizer ON leagues (organizer_id);
			CREATE INDEX IF NOT EXISTS idx_league_visibility ON leagues (visibility);
			CREATE INDEX IF NOT EXISTS idx_league_deleted ON leagues (deleted_at);
		`),
	},
	{
		Version: "2024060103",
		Up: execSQL(`
			CREATE TABLE IF NOT EXISTS seasons (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				league_id UUID NOT NULL REFERENCES leagues (id),
				start_date DATE NOT NULL,
				end_date DATE,
				registration_open_date DATE,
				registration_close_date DATE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_season_league ON seasons (league_id);
			CREATE INDEX IF NOT EXISTS idx_season_dates ON seasons (start_date, end_date);
		`),
	},
	{
		Version: "2024060104",
		Up: execSQL(`
			CREATE TABLE IF NOT EXISTS rounds (
				id UUID PRIMARY KEY,
				season_id UUID NOT NULL REFERENCES seasons (id),
				creator_id UUID NOT NULL REFERENCES players (id),
				date DATE NOT NULL,
				course_name VARCHAR(255) NOT NULL,
				location VARCHAR(500),
				start_time TIME,
				deleted_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_round_season ON rounds (season_id);
			CREATE INDEX IF NOT EXISTS idx_round_date ON rounds (date);
			CREATE INDEX IF NOT EXISTS idx_round_deleted ON rounds (deleted_at);
		`),
	},
	{
		Version: "2024060105",
		Up: execSQL(`
			CREATE TABLE IF NOT EXISTS league_assistants (
				id UUID PRIMARY KEY,
				player_id UUID NOT NULL REFERENCES players (id),
				league_id UUID NOT NULL REFERENCES leagues (id),
				assigned_by_id UUID NOT NULL REFERENCES players (id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_league_assistant UNIQUE (player_id, league_id)
			);
			CREATE INDEX IF NOT EXISTS idx_assistant_league ON league_assistants (league_id);
			CREATE INDEX IF NOT EXISTS idx_assistant_player ON league_assistants (player_id);
		`),
	},
	{
		Version: "2024060106",
		Up: execSQL(`
			CREATE TABLE IF NOT EXISTS cards (
				id UUID PRIMARY KEY,
				round_id UUID NOT NULL REFERENCES rounds (id),
				creator_id UUID NOT NULL REFERENCES players (id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_card_round ON cards (round_id);

			DO $$ BEGIN
				CREATE TYPE participation_status AS ENUM ('registered', 'checked_in', 'completed', 'dnf');
			EXCEPTION WHEN duplicate_object THEN NULL;
			END $$;

			CREATE TABLE IF NOT EXISTS participations (
				id UUID PRIMARY KEY,
				player_id UUID NOT NULL REFERENCES players (id),
				round_id UUID NOT NULL REFERENCES rounds (id),
				card_id UUID REFERENCES cards (id),
				status participation_status NOT NULL DEFAULT 'registered',
				online_registration_time TIMESTAMPTZ,
				physical_checkin_time TIMESTAMPTZ,
				score INTEGER,
				score_entered_by_id UUID REFERENCES players (id),
				score_entered_at TIMESTAMPTZ,
				score_confirmed BOOLEAN NOT NULL DEFAULT false,
				score_confirmed_by_id UUID REFERENCES players (id),
				score_confirmed_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_participation_player_round UNIQUE (player_id, round_id)
			);
			CREATE INDEX IF NOT EXISTS idx_participation_player ON participations (player_id);
			CREATE INDEX IF NOT EXISTS idx_participation_round ON participations (round_id);
			CREATE INDEX IF NOT EXISTS idx_participation_card ON participations (card_id);
			CREATE INDEX IF NOT EXISTS idx_participation_status ON participations (status);
		`),
	},
	{
		Version: "2024060107",
		Up: execSQL(`
			CREATE TABLE IF NOT EXISTS tags (
				id UUID PRIMARY KEY,
				player_id UUID NOT NULL REFERENCES players (id),
				season_id UUID NOT NULL REFERENCES seasons (id),
				tag_number INTEGER NOT NULL,
				assignment_date TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				CONSTRAINT uq_tag_player_season UNIQUE (player_id, season_id),
				CONSTRAINT uq_tag_season_number UNIQUE (season_id, tag_number)
			);
			CREATE INDEX IF NOT EXISTS idx_tag_season ON tags (season_id);

			CREATE TABLE IF NOT EXISTS tag_history (
				id UUID PRIMARY KEY,
				tag_number INTEGER NOT NULL,
				player_id UUID NOT NULL REFERENCES players (id),
				season_id UUID NOT NULL REFERENCES seasons (id),
				round_id UUID REFERENCES rounds (id),
				assignment_date TIMESTAMPTZ NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_tag_history_player ON tag_history (player_id);
			CREATE INDEX IF NOT EXISTS idx_tag_history_season ON tag_history (season_id);
			CREATE INDEX IF NOT EXISTS idx_tag_history_round ON tag_history (round_id);
			CREATE INDEX IF NOT EXISTS idx_tag_history_player_season ON tag_history (player_id, season_id);
			CREATE INDEX IF NOT EXISTS idx_tag_history_assignment_date ON tag_history (assignment_date);
		`),
	},
	{
		Version: "2024060108",
		Up: execSQL(`
			DO $$ BEGIN
				CREATE TYPE bet_type AS ENUM ('ace_pot', 'ctp', 'challenge');
			EXCEPTION WHEN duplicate_object THEN NULL;
			END $$;

			CREATE TABLE IF NOT EXISTS bets (
				id UUID PRIMARY KEY,
				player_id UUID NOT NULL REFERENCES players (id),
				round_id UUID NOT NULL REFERENCES rounds (id),
				bet_type bet_type NOT NULL,
				amount NUMERIC(10, 2) NOT NULL,
				description TEXT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_bet_player ON bets (player_id);
			CREATE INDEX IF NOT EXISTS idx_bet_round ON bets (round_id);
		`),
	},
	{
		// email уникален без учета регистра, как и поиск по нему
		Version: "2024060109",
		Up: execSQL(`
			ALTER TABLE players DROP CONSTRAINT IF EXISTS players_email_key;
			DROP INDEX IF EXISTS idx_player_email;
			CREATE UNIQUE INDEX IF NOT EXISTS uq_player_email_lower ON players (lower(email));
		`),
	},
}

// Versions lists every known migration version in apply order.
func Versions() []string {
	out := make([]string, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, m.Version)
	}
	return out
}

func Run(ctx context.Context, db *sql.DB, log logger.Logger) error {
	return run(ctx, db, migrations, log)
}

func run(ctx context.Context, db *sql.DB, list []Migration, log logger.Logger) error {
	// таблица учета примененных миграций
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range list {
		if applied[m.Version] {
			continue
		}

		log.Infof("Applying migration: %s", m.Version)
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version) VALUES ($1)",
			m.Version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Version, err)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
