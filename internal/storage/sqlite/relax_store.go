package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/focusd/internal/storage"
)

type relaxStore struct {
	db *sql.DB
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *relaxStore) EnsureDay(ctx context.Context, day string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO relax_mode_daily (day, used_ms, active_since_ms) VALUES (?, 0, NULL)`, day); err != nil {
		return fmt.Errorf("ensure relax day: %w", err)
	}
	return nil
}

func (s *relaxStore) GetDay(ctx context.Context, day string) (*storage.DailyQuota, error) {
	quota, err := getDay(ctx, s.db, day)
	if err != nil {
		return nil, err
	}
	return &quota, nil
}

func (s *relaxStore) OpenInterval(ctx context.Context, day string, sinceMs int64) (bool, error) {
	opened := false
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO relax_mode_daily (day, used_ms, active_since_ms) VALUES (?, 0, NULL)`, day); err != nil {
			return fmt.Errorf("ensure relax day: %w", err)
		}
		quota, err := getDay(ctx, tx, day)
		if err != nil {
			return err
		}
		if quota.Active() {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE relax_mode_daily SET used_ms = ?, active_since_ms = ? WHERE day = ?`, quota.UsedMs, sinceMs, day); err != nil {
			return fmt.Errorf("open relax interval: %w", err)
		}
		opened = true
		return nil
	})
	return opened, err
}

func (s *relaxStore) CloseInterval(ctx context.Context, day string, nowMs int64) (storage.CloseResult, error) {
	var result storage.CloseResult
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		quota, err := getDay(ctx, tx, day)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		result.UsedMs = quota.UsedMs
		if !quota.Active() {
			return nil
		}

		since := *quota.ActiveSinceMs
		delta := max(0, nowMs-since)
		used := quota.UsedMs + delta
		if _, err := tx.ExecContext(ctx, `UPDATE relax_mode_daily SET used_ms = ?, active_since_ms = NULL WHERE day = ?`, used, day); err != nil {
			return fmt.Errorf("close relax interval: %w", err)
		}

		result = storage.CloseResult{
			Closed:      true,
			SinceMs:     since,
			CommittedMs: delta,
			UsedMs:      used,
		}
		return nil
	})
	return result, err
}

func (s *relaxStore) ListDays(ctx context.Context) ([]storage.DailyQuota, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day, used_ms, active_since_ms FROM relax_mode_daily ORDER BY day`)
	if err != nil {
		return nil, fmt.Errorf("list relax days: %w", err)
	}
	defer func() { _ = rows.Close() }()

	days := make([]storage.DailyQuota, 0)
	for rows.Next() {
		var day string
		var used, since sql.NullString
		if err := rows.Scan(&day, &used, &since); err != nil {
			return nil, fmt.Errorf("scan relax day: %w", err)
		}
		days = append(days, quotaFromColumns(day, used, since))
	}
	return days, rows.Err()
}

func (s *relaxStore) DeleteDaysBefore(ctx context.Context, cutoffDay string) (int, error) {
	deleted := 0
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM relax_sessions WHERE day < ?`, cutoffDay); err != nil {
			return fmt.Errorf("delete relax sessions: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM relax_mode_daily WHERE day < ?`, cutoffDay)
		if err != nil {
			return fmt.Errorf("delete relax days: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = int(n)
		return nil
	})
	return deleted, err
}

func (s *relaxStore) AddSession(ctx context.Context, session storage.RelaxSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relax_sessions (id, day, started_at_ms, ended_at_ms, duration_ms, reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, session.ID, session.Day, session.StartedAt.UnixMilli(), session.EndedAt.UnixMilli(), session.DurationMs, string(session.Reason))
	if err != nil {
		return fmt.Errorf("add relax session: %w", err)
	}
	return nil
}

func (s *relaxStore) ListSessions(ctx context.Context, day string) ([]storage.RelaxSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, day, started_at_ms, ended_at_ms, duration_ms, reason
		FROM relax_sessions WHERE day = ? ORDER BY started_at_ms, id
	`, day)
	if err != nil {
		return nil, fmt.Errorf("list relax sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]storage.RelaxSession, 0)
	for rows.Next() {
		var session storage.RelaxSession
		var started, ended int64
		var reason string
		if err := rows.Scan(&session.ID, &session.Day, &started, &ended, &session.DurationMs, &reason); err != nil {
			return nil, fmt.Errorf("scan relax session: %w", err)
		}
		session.StartedAt = time.UnixMilli(started).UTC()
		session.EndedAt = time.UnixMilli(ended).UTC()
		session.Reason = storage.CloseReason(reason)
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func getDay(ctx context.Context, q querier, day string) (storage.DailyQuota, error) {
	var used, since sql.NullString
	err := q.QueryRowContext(ctx, `SELECT used_ms, active_since_ms FROM relax_mode_daily WHERE day = ?`, day).Scan(&used, &since)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DailyQuota{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.DailyQuota{}, fmt.Errorf("get relax day: %w", err)
	}
	return quotaFromColumns(day, used, since), nil
}

// quotaFromColumns reads loosely typed columns. SQLite keeps whatever was
// written, so malformed values fall back to defaults.
func quotaFromColumns(day string, used, since sql.NullString) storage.DailyQuota {
	quota := storage.DailyQuota{Day: day}
	if used.Valid {
		quota.UsedMs = storage.ParseCounter(used.String)
	}
	if since.Valid {
		quota.ActiveSinceMs = storage.ParseNullableMillis(since.String)
	}
	return quota
}
