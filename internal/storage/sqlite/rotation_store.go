package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goodtune/focusd/internal/storage"
)

type rotationStore struct {
	db *sql.DB
}

func (s *rotationStore) SeedItems(ctx context.Context, items []storage.RotationItem) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO header_rotation_items (item_key, item_type, ordinal, display_count, last_shown_ms)
			VALUES (?, ?, ?, 0, 0)
			ON CONFLICT(item_key) DO UPDATE SET item_type = excluded.item_type, ordinal = excluded.ordinal
		`)
		if err != nil {
			return fmt.Errorf("prepare seed: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, item := range items {
			if _, err := stmt.ExecContext(ctx, item.Key, item.Type, item.Ordinal); err != nil {
				return fmt.Errorf("seed rotation item %s: %w", item.Key, err)
			}
		}
		return nil
	})
}

func (s *rotationStore) ListItems(ctx context.Context) ([]storage.RotationItem, error) {
	items, err := s.queryItems(ctx, `SELECT item_key, item_type, ordinal, display_count, last_shown_ms FROM header_rotation_items`)
	if err != nil {
		return nil, err
	}
	storage.SortRotationItems(items)
	return items, nil
}

func (s *rotationStore) GetState(ctx context.Context) (*storage.RotationState, error) {
	var current, lastChange sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT current_key, last_change_ms FROM header_rotation_state WHERE id = 1`).Scan(&current, &lastChange)
	if errors.Is(err, sql.ErrNoRows) {
		return &storage.RotationState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rotation state: %w", err)
	}
	return &storage.RotationState{
		CurrentKey:   current.String,
		LastChangeMs: storage.ParseCounter(lastChange.String),
	}, nil
}

func (s *rotationStore) Candidates(ctx context.Context, keys []string, limit int) ([]storage.RotationItem, error) {
	if len(keys) == 0 {
		return []storage.RotationItem{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		args = append(args, key)
	}

	// Ordering happens in Go so malformed counters sort the same way on every
	// backend.
	items, err := s.queryItems(ctx, `
		SELECT item_key, item_type, ordinal, display_count, last_shown_ms
		FROM header_rotation_items WHERE item_key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	storage.SortRotationItems(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *rotationStore) Commit(ctx context.Context, key string, nowMs int64) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO header_rotation_items (item_key, item_type, ordinal, display_count, last_shown_ms)
			VALUES (?, ?, 0, 0, 0)
		`, key, storage.ItemTypeOf(key)); err != nil {
			return fmt.Errorf("ensure rotation item: %w", err)
		}

		var count sql.NullString
		if err := tx.QueryRowContext(ctx, `SELECT display_count FROM header_rotation_items WHERE item_key = ?`, key).Scan(&count); err != nil {
			return fmt.Errorf("read display count: %w", err)
		}
		next := storage.ParseCounter(count.String) + 1

		if _, err := tx.ExecContext(ctx, `UPDATE header_rotation_items SET display_count = ?, last_shown_ms = ? WHERE item_key = ?`, next, nowMs, key); err != nil {
			return fmt.Errorf("update rotation item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO header_rotation_state (id, current_key, last_change_ms) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET current_key = excluded.current_key, last_change_ms = excluded.last_change_ms
		`, key, nowMs); err != nil {
			return fmt.Errorf("update rotation state: %w", err)
		}
		return nil
	})
}

func (s *rotationStore) queryItems(ctx context.Context, query string, args ...any) ([]storage.RotationItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rotation items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]storage.RotationItem, 0)
	for rows.Next() {
		var key string
		var itemType, ordinal, count, lastShown sql.NullString
		if err := rows.Scan(&key, &itemType, &ordinal, &count, &lastShown); err != nil {
			return nil, fmt.Errorf("scan rotation item: %w", err)
		}
		item := storage.RotationItem{
			Key:          key,
			Type:         itemType.String,
			Ordinal:      storage.ParseOrdinal(ordinal.String),
			DisplayCount: storage.ParseCounter(count.String),
			LastShownMs:  storage.ParseCounter(lastShown.String),
		}
		if item.Type == "" {
			item.Type = storage.ItemTypeOf(key)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
