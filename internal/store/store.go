// Package store persists courses, outlines, jobs, generation status,
// graphics, and generated artifacts in a single sqlite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite handles one writer at a time; a larger pool just produces
	// SQLITE_BUSY under concurrent section writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS courses (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			page_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pages (
			course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			page_num  INTEGER NOT NULL,
			text      TEXT NOT NULL,
			PRIMARY KEY (course_id, page_num)
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			id           TEXT PRIMARY KEY,
			course_id    TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			parent_id    TEXT,
			title        TEXT NOT NULL,
			level        TEXT NOT NULL,
			start_page   INTEGER NOT NULL,
			end_page     INTEGER NOT NULL,
			start_marker TEXT NOT NULL DEFAULT '',
			end_marker   TEXT NOT NULL DEFAULT '',
			inventory    TEXT,
			gen_status   TEXT NOT NULL DEFAULT 'pending',
			sort_order   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id            TEXT PRIMARY KEY,
			course_id     TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			status        TEXT NOT NULL,
			stage         TEXT NOT NULL DEFAULT '',
			attempts      INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_course ON jobs(course_id)`,
		`CREATE TABLE IF NOT EXISTS generation_status (
			course_id       TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			kind            TEXT NOT NULL,
			status          TEXT NOT NULL,
			progress        INTEGER NOT NULL DEFAULT 0,
			current_step    TEXT NOT NULL DEFAULT '',
			error_message   TEXT NOT NULL DEFAULT '',
			started_at      TEXT,
			completed_at    TEXT,
			partial_content TEXT,
			section_index   INTEGER,
			total_sections  INTEGER,
			PRIMARY KEY (course_id, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS graphics (
			id               TEXT PRIMARY KEY,
			course_id        TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			page_number      INTEGER NOT NULL,
			graphic_type     TEXT NOT NULL,
			description      TEXT NOT NULL,
			confidence       REAL NOT NULL DEFAULT 0,
			elements         TEXT,
			suggestions      TEXT,
			related_concepts TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS manifest_items (
			id          TEXT PRIMARY KEY,
			course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			section_id  TEXT NOT NULL,
			description TEXT NOT NULL,
			type        TEXT NOT NULL,
			page_number INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id          TEXT PRIMARY KEY,
			course_id   TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			section_id  TEXT NOT NULL,
			question    TEXT NOT NULL,
			options     TEXT NOT NULL,
			answer      TEXT NOT NULL,
			explanation TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS flashcards (
			id         TEXT PRIMARY KEY,
			course_id  TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			section_id TEXT NOT NULL,
			front      TEXT NOT NULL,
			back       TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS note_fragments (
			course_id  TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			section_id TEXT NOT NULL,
			sort_order INTEGER NOT NULL,
			content    TEXT NOT NULL,
			PRIMARY KEY (course_id, section_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// now returns the canonical stored timestamp.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := parseTime(v.String)
	return &t
}
