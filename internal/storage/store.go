package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
// Each component owns a disjoint set of tables/keys and never reads another's.
type Store interface {
	Close() error
	Relax() RelaxStore
	Rotation() RotationStore
	Marks() MarkStore
}

// RelaxStore manages the per-day relax quota rows and the closed interval log.
type RelaxStore interface {
	// EnsureDay inserts an empty row for day if none exists.
	EnsureDay(ctx context.Context, day string) error
	GetDay(ctx context.Context, day string) (*DailyQuota, error)
	// OpenInterval sets active_since_ms only when the row is idle. It reports
	// whether an interval was opened.
	OpenInterval(ctx context.Context, day string, sinceMs int64) (bool, error)
	// CloseInterval atomically commits max(0, nowMs-active_since_ms) into
	// used_ms and clears active_since_ms. closed is false when the row was idle.
	CloseInterval(ctx context.Context, day string, nowMs int64) (result CloseResult, err error)
	ListDays(ctx context.Context) ([]DailyQuota, error)
	// DeleteDaysBefore removes day rows (and their sessions) strictly older than
	// cutoffDay.
	DeleteDaysBefore(ctx context.Context, cutoffDay string) (int, error)

	AddSession(ctx context.Context, session RelaxSession) error
	ListSessions(ctx context.Context, day string) ([]RelaxSession, error)
}

// RotationStore manages the rotation item rows and the singleton selection state.
type RotationStore interface {
	// SeedItems inserts rows for items not yet present. Existing counters are
	// preserved; type and ordinal are refreshed from the pool definition.
	SeedItems(ctx context.Context, items []RotationItem) error
	ListItems(ctx context.Context) ([]RotationItem, error)
	GetState(ctx context.Context) (*RotationState, error)
	// Candidates returns up to limit rows among keys ordered by display_count,
	// last_shown_ms and ordinal, all ascending.
	Candidates(ctx context.Context, keys []string, limit int) ([]RotationItem, error)
	// Commit increments the item's display_count, sets its last_shown_ms and
	// makes it the current selection, all in one atomic step.
	Commit(ctx context.Context, key string, nowMs int64) error
}

// MarkStore records idempotent once-only markers.
type MarkStore interface {
	Has(ctx context.Context, key string) (bool, error)
	// Mark inserts key if absent and reports whether it was newly created.
	Mark(ctx context.Context, key string) (bool, error)
}
