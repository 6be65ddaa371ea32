package bolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goodtune/focusd/internal/storage"
	"go.etcd.io/bbolt"
)

type relaxStore struct {
	db *bbolt.DB
}

func (s *relaxStore) EnsureDay(ctx context.Context, day string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRelaxDaily)
		if err != nil {
			return err
		}
		if b.Get([]byte(day)) != nil {
			return nil
		}
		return putJSON(b, day, storage.DailyQuota{Day: day})
	})
}

func (s *relaxStore) GetDay(ctx context.Context, day string) (*storage.DailyQuota, error) {
	var quota *storage.DailyQuota
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRelaxDaily)
		if err != nil {
			return err
		}
		value := b.Get([]byte(day))
		if value == nil {
			return storage.ErrNotFound
		}
		q := decodeDailyQuota(day, value)
		quota = &q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quota, nil
}

func (s *relaxStore) OpenInterval(ctx context.Context, day string, sinceMs int64) (bool, error) {
	opened := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRelaxDaily)
		if err != nil {
			return err
		}
		quota := storage.DailyQuota{Day: day}
		if existing := b.Get([]byte(day)); existing != nil {
			quota = decodeDailyQuota(day, existing)
		}
		if quota.Active() {
			return nil
		}
		quota.ActiveSinceMs = &sinceMs
		opened = true
		return putJSON(b, day, quota)
	})
	return opened, err
}

func (s *relaxStore) CloseInterval(ctx context.Context, day string, nowMs int64) (storage.CloseResult, error) {
	var result storage.CloseResult
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRelaxDaily)
		if err != nil {
			return err
		}
		existing := b.Get([]byte(day))
		if existing == nil {
			return nil
		}
		quota := decodeDailyQuota(day, existing)
		result.UsedMs = quota.UsedMs
		if !quota.Active() {
			return nil
		}

		since := *quota.ActiveSinceMs
		delta := max(0, nowMs-since)
		quota.UsedMs += delta
		quota.ActiveSinceMs = nil

		result = storage.CloseResult{
			Closed:      true,
			SinceMs:     since,
			CommittedMs: delta,
			UsedMs:      quota.UsedMs,
		}
		return putJSON(b, day, quota)
	})
	return result, err
}

func (s *relaxStore) ListDays(ctx context.Context) ([]storage.DailyQuota, error) {
	return listBucket(ctx, s.db, bucketRelaxDaily, func(k, v []byte) storage.DailyQuota {
		return decodeDailyQuota(string(k), v)
	})
}

func (s *relaxStore) DeleteDaysBefore(ctx context.Context, cutoffDay string) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		days, err := bucket(tx, bucketRelaxDaily)
		if err != nil {
			return err
		}
		sessions, err := bucket(tx, bucketRelaxSessions)
		if err != nil {
			return err
		}

		// Keys are YYYY-MM-DD, so byte order is calendar order.
		var stale [][]byte
		c := days.Cursor()
		for k, _ := c.First(); k != nil && string(k) < cutoffDay; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := days.Delete(k); err != nil {
				return err
			}
			deleted++
		}

		var staleSessions [][]byte
		sc := sessions.Cursor()
		for k, _ := sc.First(); k != nil; k, _ = sc.Next() {
			if day, _, ok := bytes.Cut(k, []byte("/")); ok && string(day) < cutoffDay {
				staleSessions = append(staleSessions, append([]byte(nil), k...))
			}
		}
		for _, k := range staleSessions {
			if err := sessions.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

func (s *relaxStore) AddSession(ctx context.Context, session storage.RelaxSession) error {
	key := fmt.Sprintf("%s/%020d-%s", session.Day, session.StartedAt.UnixNano(), session.ID)
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRelaxSessions)
		if err != nil {
			return err
		}
		return putJSON(b, key, session)
	})
}

func (s *relaxStore) ListSessions(ctx context.Context, day string) ([]storage.RelaxSession, error) {
	sessions := make([]storage.RelaxSession, 0)
	prefix := []byte(day + "/")
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketRelaxSessions)
		if err != nil {
			return err
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var session storage.RelaxSession
			if err := unmarshal(v, &session); err != nil {
				return err
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func decodeDailyQuota(day string, data []byte) storage.DailyQuota {
	fields := decodeFields(data)
	quota := storage.DailyQuota{
		Day:           day,
		UsedMs:        storage.RawCounter(fields["used_ms"]),
		ActiveSinceMs: storage.RawNullableMillis(fields["active_since_ms"]),
	}
	if stored := rawText(fields["day"]); stored != "" {
		quota.Day = stored
	}
	return quota
}
