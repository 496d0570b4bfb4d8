package migrations

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gopkg.in/go-playground/assert.v1"
)

type MockLogger struct {
	mu   sync.Mutex
	logs []string
}

func (m *MockLogger) add(level, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, level+" "+fmt.Sprintf(format, args...))
}

func (m *MockLogger) Errorf(format string, args ...interface{}) { m.add("[ERROR]", format, args...) }
func (m *MockLogger) Infof(format string, args ...interface{})  { m.add("[INFO]", format, args...) }
func (m *MockLogger) Warnf(format string, args ...interface{})  { m.add("[WARN]", format, args...) }
func (m *MockLogger) Fatalf(format string, args ...interface{}) { m.add("[FATAL]", format, args...) }

func TestVersions_OrderedAndUnique(t *testing.T) {
	versions := Versions()
	if len(versions) == 0 {
		t.Fatal("no migrations registered")
	}

	seen := make(map[string]bool)
	for _, v := range versions {
		if seen[v] {
			t.Errorf("duplicate version %s", v)
		}
		seen[v] = true
		if len(v) > 14 {
			t.Errorf("version %s does not fit schema_migrations.version", v)
		}
	}

	assert.Equal(t, true, sort.StringsAreSorted(versions))
}

func testMigrations() []Migration {
	step := func(name string) Migration {
		return Migration{
			Version: name,
			Up:      execSQL("CREATE TABLE t_" + name + " (id INT)"),
		}
	}
	return []Migration{step("001"), step("002")}
}

func TestRun_AppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t_002").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("002").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	log := &MockLogger{}
	if err := run(context.Background(), db, testMigrations(), log); err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	assert.Equal(t, []string{"[INFO] Applying migration: 002"}, log.logs)
}

func TestRun_NothingPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001").AddRow("002"))

	log := &MockLogger{}
	if err := run(context.Background(), db, testMigrations(), log); err != nil {
		t.Fatalf("run: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	assert.Equal(t, 0, len(log.logs))
}

func TestRun_RollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE t_001").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = run(context.Background(), db, testMigrations(), &MockLogger{})
	if err == nil {
		t.Fatal("expected error")
	}
	assert.Equal(t, "migration 001 failed: syntax error", err.Error())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRun_MigrationsTableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnError(errors.New("permission denied"))

	err = Run(context.Background(), db, &MockLogger{})
	if err == nil {
		t.Fatal("expected error")
	}
	assert.Equal(t, "failed to create migrations table: permission denied", err.Error())
}

func TestRun_PlayerEmailUniqueIgnoresCase(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	last := migrations[len(migrations)-1]
	applied := sqlmock.NewRows([]string{"version"})
	for _, v := range Versions()[:len(migrations)-1] {
		applied.AddRow(v)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").WillReturnRows(applied)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP CONSTRAINT IF EXISTS players_email_key") +
		"(?s).*" + regexp.QuoteMeta("CREATE UNIQUE INDEX IF NOT EXISTS uq_player_email_lower ON players (lower(email))")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(last.Version).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	log := &MockLogger{}
	if err := Run(context.Background(), db, log); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
	assert.Equal(t, []string{"[INFO] Applying migration: " + last.Version}, log.logs)
}
