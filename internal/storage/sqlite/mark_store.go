package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type markStore struct {
	db *sql.DB
}

func (s *markStore) Has(ctx context.Context, key string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM reset_marks WHERE key = ?`, key).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check reset mark: %w", err)
	}
	return true, nil
}

func (s *markStore) Mark(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO reset_marks (key) VALUES (?)`, key)
	if err != nil {
		return false, fmt.Errorf("insert reset mark: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
