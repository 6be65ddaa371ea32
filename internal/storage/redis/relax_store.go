package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/goodtune/focusd/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	ensureDay     = redis.NewScript(ensureDayScript)
	openInterval  = redis.NewScript(openIntervalScript)
	closeInterval = redis.NewScript(closeIntervalScript)
)

type relaxStore struct {
	client *redis.Client
}

// EnsureDay creates an empty day row if it does not exist
func (s *relaxStore) EnsureDay(ctx context.Context, day string) error {
	keys := []string{relaxDayKey(day), relaxDaysKey}
	return ensureDay.Run(ctx, s.client, keys, day).Err()
}

// GetDay retrieves the quota row for a day
func (s *relaxStore) GetDay(ctx context.Context, day string) (*storage.DailyQuota, error) {
	data, err := s.client.HGetAll(ctx, relaxDayKey(day)).Result()
	if err != nil {
		return nil, err
	}
	return parseDailyQuota(day, data)
}

// OpenInterval opens an interval when the row is idle
func (s *relaxStore) OpenInterval(ctx context.Context, day string, sinceMs int64) (bool, error) {
	keys := []string{relaxDayKey(day), relaxDaysKey}
	opened, err := openInterval.Run(ctx, s.client, keys, day, sinceMs).Int64()
	if err != nil {
		return false, err
	}
	return opened == 1, nil
}

// CloseInterval commits the open interval, if any
func (s *relaxStore) CloseInterval(ctx context.Context, day string, nowMs int64) (storage.CloseResult, error) {
	values, err := closeInterval.Run(ctx, s.client, []string{relaxDayKey(day)}, nowMs).Int64Slice()
	if err != nil {
		return storage.CloseResult{}, err
	}
	if len(values) != 4 {
		return storage.CloseResult{}, fmt.Errorf("unexpected close interval reply: %v", values)
	}

	return storage.CloseResult{
		Closed:      values[0] == 1,
		SinceMs:     values[1],
		CommittedMs: values[2],
		UsedMs:      values[3],
	}, nil
}

// ListDays returns every stored day ordered by date
func (s *relaxStore) ListDays(ctx context.Context) ([]storage.DailyQuota, error) {
	days, err := s.client.SMembers(ctx, relaxDaysKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(days)

	cmds := make([]*redis.MapStringStringCmd, len(days))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, day := range days {
			cmds[i] = pipe.HGetAll(ctx, relaxDayKey(day))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]storage.DailyQuota, 0, len(days))
	for i, day := range days {
		quota, err := parseDailyQuota(day, cmds[i].Val())
		if err != nil {
			// Index entry without a row; skip
			continue
		}
		result = append(result, *quota)
	}
	return result, nil
}

// DeleteDaysBefore removes day rows and session logs older than cutoffDay
func (s *relaxStore) DeleteDaysBefore(ctx context.Context, cutoffDay string) (int, error) {
	days, err := s.client.SMembers(ctx, relaxDaysKey).Result()
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, day := range days {
		if day < cutoffDay {
			stale = append(stale, day)
		}
	}

	var sessionKeys []string
	var cursor uint64
	for {
		var keys []string
		keys, cursor, err = s.client.Scan(ctx, cursor, relaxSessionsScan, 100).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			if strings.TrimPrefix(key, relaxSessionsKey("")) < cutoffDay {
				sessionKeys = append(sessionKeys, key)
			}
		}
		if cursor == 0 {
			break
		}
	}

	if len(stale) == 0 && len(sessionKeys) == 0 {
		return 0, nil
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			keys := make([]string, len(stale))
			members := make([]interface{}, len(stale))
			for i, day := range stale {
				keys[i] = relaxDayKey(day)
				members[i] = day
			}
			deleted = pipe.Del(ctx, keys...)
			pipe.SRem(ctx, relaxDaysKey, members...)
		}
		if len(sessionKeys) > 0 {
			pipe.Del(ctx, sessionKeys...)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// AddSession appends a closed interval to the day's log
func (s *relaxStore) AddSession(ctx context.Context, session storage.RelaxSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.client.RPush(ctx, relaxSessionsKey(session.Day), data).Err()
}

// ListSessions returns the day's closed intervals in insertion order
func (s *relaxStore) ListSessions(ctx context.Context, day string) ([]storage.RelaxSession, error) {
	values, err := s.client.LRange(ctx, relaxSessionsKey(day), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]storage.RelaxSession, 0, len(values))
	for _, value := range values {
		var session storage.RelaxSession
		if err := json.Unmarshal([]byte(value), &session); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
