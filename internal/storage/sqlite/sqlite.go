package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/goodtune/focusd/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements the storage.Store interface on top of SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := storage.EnsureDir(dir); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Relax returns the relax quota store.
func (s *Store) Relax() storage.RelaxStore { return &relaxStore{db: s.db} }

// Rotation returns the rotation store.
func (s *Store) Rotation() storage.RotationStore { return &rotationStore{db: s.db} }

// Marks returns the reset mark store.
func (s *Store) Marks() storage.MarkStore { return &markStore{db: s.db} }

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	migrations := getMigrations()
	versions := make([]int, 0, len(migrations))
	for version := range migrations {
		versions = append(versions, version)
	}
	slices.Sort(versions)
	for _, version := range versions {
		if version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}

	return nil
}

func getMigrations() map[int]string {
	return map[int]string{
		1: migration001RelaxDaily,
		2: migration002RelaxSessions,
		3: migration003RotationItems,
		4: migration004RotationState,
		5: migration005ResetMarks,
	}
}

// withTx runs fn inside a transaction, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const migration001RelaxDaily = `
CREATE TABLE IF NOT EXISTS relax_mode_daily (
	day TEXT PRIMARY KEY,
	used_ms INTEGER NOT NULL DEFAULT 0,
	active_since_ms INTEGER
);
`

const migration002RelaxSessions = `
CREATE TABLE IF NOT EXISTS relax_sessions (
	id TEXT PRIMARY KEY,
	day TEXT NOT NULL,
	started_at_ms INTEGER NOT NULL,
	ended_at_ms INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL
);

CREATE INDEX idx_relax_sessions_day ON relax_sessions(day, started_at_ms);
`

const migration003RotationItems = `
CREATE TABLE IF NOT EXISTS header_rotation_items (
	item_key TEXT PRIMARY KEY,
	item_type TEXT NOT NULL,
	ordinal INTEGER NOT NULL DEFAULT 0,
	display_count INTEGER NOT NULL DEFAULT 0,
	last_shown_ms INTEGER NOT NULL DEFAULT 0
);
`

const migration004RotationState = `
CREATE TABLE IF NOT EXISTS header_rotation_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	current_key TEXT,
	last_change_ms INTEGER NOT NULL DEFAULT 0
);
`

const migration005ResetMarks = `
CREATE TABLE IF NOT EXISTS reset_marks (
	key TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
