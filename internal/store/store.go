// Package store persists signals, initiatives, notifications and dismissals
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update matched no row or
	// a uniqueness constraint was violated.
	ErrConflict = errors.New("conflict")
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Store is the SQLite-backed repository. All access goes through a single
// connection, so writes are serialized.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies
// migrations. path may be ":memory:".
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: logger.Named("store"), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id                TEXT PRIMARY KEY,
		workspace_id      TEXT NOT NULL,
		project_id        TEXT,
		verbatim          TEXT NOT NULL,
		interpretation    TEXT,
		severity          TEXT,
		frequency         TEXT,
		user_segment      TEXT,
		ai_interpretation TEXT,
		embedding         TEXT,
		classification    TEXT,
		status            TEXT NOT NULL DEFAULT 'pending',
		processed_at      INTEGER,
		source_type       TEXT NOT NULL DEFAULT 'api',
		source_ref        TEXT,
		source_metadata   TEXT,
		tags              TEXT,
		merged_into       TEXT,
		merged_by         TEXT,
		merged_at         INTEGER,
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_workspace_status ON signals(workspace_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_unprocessed ON signals(created_at) WHERE processed_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_source_ref
		ON signals(workspace_id, source_type, source_ref)
		WHERE source_ref IS NOT NULL AND source_ref != ''`,
	`CREATE TABLE IF NOT EXISTS initiatives (
		workspace_id TEXT NOT NULL,
		id           TEXT NOT NULL,
		name         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		embedding    TEXT,
		updated_at   INTEGER NOT NULL,
		PRIMARY KEY (workspace_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id               TEXT PRIMARY KEY,
		workspace_id     TEXT NOT NULL,
		type             TEXT NOT NULL,
		title            TEXT NOT NULL,
		message          TEXT NOT NULL,
		priority         TEXT NOT NULL,
		cluster_id       TEXT,
		cluster_size     INTEGER NOT NULL DEFAULT 0,
		cluster_severity TEXT,
		metadata         TEXT,
		created_at       INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_cluster ON notifications(workspace_id, cluster_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS dismissals (
		signal_a     TEXT NOT NULL,
		signal_b     TEXT NOT NULL,
		dismissed_by TEXT NOT NULL,
		dismissed_at INTEGER NOT NULL,
		PRIMARY KEY (signal_a, signal_b)
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

func nullMicros(t *time.Time) any {
	if t == nil {
		return nil
	}
	return micros(*t)
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
