// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// The driver is modernc.org/sqlite (pure Go, no CGo). Use ":memory:" for
// tests.
//
// CONCURRENCY RULES LIVE IN THE SCHEMA:
// The marketplace invariants are enforced here, not only in the service layer:
//   - a partial UNIQUE index allows one active request per (kind, from, to)
//   - enrollments.request_id is UNIQUE, so an accept can create one enrollment
//   - ratings have UNIQUE(from_user_id, to_user_id)
//   - status changes are compare-and-set updates (WHERE status = ?)
//
// Two racing requests therefore cannot both succeed even though each one
// passed the application-level checks.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/skillswap/internal/repository"
)

// compile-time checks that *DB implements every repository interface
var (
	_ repository.UserRepository       = (*DB)(nil)
	_ repository.RequestRepository    = (*DB)(nil)
	_ repository.EnrollmentRepository = (*DB)(nil)
	_ repository.RatingRepository     = (*DB)(nil)
	_ repository.MessageRepository    = (*DB)(nil)
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/skillswap.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests, lost on close)
//
// SINGLE WRITER:
// SQLite allows one writer at a time. We cap the pool at one connection so
// writes queue inside database/sql instead of failing with SQLITE_BUSY, and so
// ":memory:" databases are not silently split across connections (each new
// connection to ":memory:" would get its own empty database).
// Consequence: code holding a *sql.Tx must run every statement on that tx.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                TEXT PRIMARY KEY,
			email             TEXT NOT NULL UNIQUE,
			name              TEXT NOT NULL,
			password_hash     TEXT NOT NULL DEFAULT '',
			github_id         INTEGER UNIQUE,
			location          TEXT NOT NULL DEFAULT '',
			availability      TEXT NOT NULL DEFAULT '',
			profile_image     TEXT NOT NULL DEFAULT '',
			skills_offered    TEXT NOT NULL DEFAULT '[]',
			skills_wanted     TEXT NOT NULL DEFAULT '[]',
			is_profile_public INTEGER NOT NULL DEFAULT 1,
			role              TEXT NOT NULL DEFAULT 'member',
			banned            INTEGER NOT NULL DEFAULT 0,
			ban_reason        TEXT NOT NULL DEFAULT '',
			banned_at         DATETIME,
			rating_average    REAL NOT NULL DEFAULT 0,
			rating_count      INTEGER NOT NULL DEFAULT 0,
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// One table for both request kinds: the lifecycle is identical and the
	// kind-specific payload columns are simply empty for the other kind.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			id                 TEXT PRIMARY KEY,
			kind               TEXT NOT NULL CHECK (kind IN ('swap', 'course')),
			from_user_id       TEXT NOT NULL REFERENCES users(id),
			to_user_id         TEXT NOT NULL REFERENCES users(id),
			status             TEXT NOT NULL,
			offered_skill      TEXT NOT NULL DEFAULT '',
			requested_skill    TEXT NOT NULL DEFAULT '',
			course_name        TEXT NOT NULL DEFAULT '',
			course_description TEXT NOT NULL DEFAULT '',
			message            TEXT NOT NULL DEFAULT '',
			feedback_rating    INTEGER,
			feedback_comment   TEXT,
			feedback_from      TEXT,
			created_at         DATETIME NOT NULL,
			updated_at         DATETIME NOT NULL,
			CHECK (from_user_id <> to_user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_requests_from ON requests(from_user_id, kind);
		CREATE INDEX IF NOT EXISTS idx_requests_to ON requests(to_user_id, kind);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_requests_one_active
			ON requests(kind, from_user_id, to_user_id)
			WHERE status IN ('pending', 'accepted');
	`)
	if err != nil {
		return fmt.Errorf("creating requests table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS enrollments (
			id                 TEXT PRIMARY KEY,
			request_id         TEXT UNIQUE REFERENCES requests(id) ON DELETE SET NULL,
			student_id         TEXT NOT NULL REFERENCES users(id),
			instructor_id      TEXT NOT NULL REFERENCES users(id),
			course_name        TEXT NOT NULL,
			course_description TEXT NOT NULL DEFAULT '',
			skill              TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			progress           INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
			start_date         DATETIME NOT NULL,
			end_date           DATETIME,
			feedback_rating    INTEGER,
			feedback_comment   TEXT,
			feedback_from      TEXT,
			created_at         DATETIME NOT NULL,
			updated_at         DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_enrollments_student ON enrollments(student_id);
		CREATE INDEX IF NOT EXISTS idx_enrollments_instructor ON enrollments(instructor_id);
	`)
	if err != nil {
		return fmt.Errorf("creating enrollments table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS ratings (
			id            TEXT PRIMARY KEY,
			from_user_id  TEXT NOT NULL REFERENCES users(id),
			to_user_id    TEXT NOT NULL REFERENCES users(id),
			rating        INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			feedback      TEXT NOT NULL,
			skill_context TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL,
			UNIQUE (from_user_id, to_user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_ratings_to ON ratings(to_user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating ratings table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id          TEXT PRIMARY KEY,
			swap_id     TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			sender_id   TEXT NOT NULL REFERENCES users(id),
			receiver_id TEXT NOT NULL REFERENCES users(id),
			content     TEXT NOT NULL,
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_swap ON messages(swap_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating messages table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	// Without extended result codes the driver reports plain SQLITE_CONSTRAINT.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// now returns the current time in UTC so stored timestamps sort lexically.
func now() time.Time {
	return time.Now().UTC()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
