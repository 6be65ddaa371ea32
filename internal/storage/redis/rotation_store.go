package redis

import (
	"context"

	"github.com/goodtune/focusd/internal/storage"
	"github.com/redis/go-redis/v9"
)

var commitSelection = redis.NewScript(commitSelectionScript)

type rotationStore struct {
	client *redis.Client
}

// SeedItems upserts item definitions without touching counters
func (s *rotationStore) SeedItems(ctx context.Context, items []storage.RotationItem) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, item := range items {
			key := rotationItemKey(item.Key)
			pipe.HSet(ctx, key, "item_type", item.Type, "ordinal", item.Ordinal)
			pipe.HSetNX(ctx, key, "display_count", 0)
			pipe.HSetNX(ctx, key, "last_shown_ms", 0)
			pipe.SAdd(ctx, rotationItemsKey, item.Key)
		}
		return nil
	})
	return err
}

// ListItems returns every known item in selection order
func (s *rotationStore) ListItems(ctx context.Context) ([]storage.RotationItem, error) {
	keys, err := s.client.SMembers(ctx, rotationItemsKey).Result()
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, keys)
	if err != nil {
		return nil, err
	}
	storage.SortRotationItems(items)
	return items, nil
}

// GetState returns the current selection
func (s *rotationStore) GetState(ctx context.Context) (*storage.RotationState, error) {
	data, err := s.client.HGetAll(ctx, rotationStateKey).Result()
	if err != nil {
		return nil, err
	}
	return parseRotationState(data), nil
}

// Candidates returns up to limit of the given items, least shown first
func (s *rotationStore) Candidates(ctx context.Context, keys []string, limit int) ([]storage.RotationItem, error) {
	items, err := s.loadItems(ctx, keys)
	if err != nil {
		return nil, err
	}
	storage.SortRotationItems(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Commit records a display and makes key the current selection
func (s *rotationStore) Commit(ctx context.Context, key string, nowMs int64) error {
	keys := []string{rotationItemKey(key), rotationItemsKey, rotationStateKey}
	return commitSelection.Run(ctx, s.client, keys, key, storage.ItemTypeOf(key), nowMs).Err()
}

func (s *rotationStore) loadItems(ctx context.Context, keys []string) ([]storage.RotationItem, error) {
	if len(keys) == 0 {
		return []storage.RotationItem{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, rotationItemKey(key))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	items := make([]storage.RotationItem, 0, len(keys))
	for i, key := range keys {
		item, err := parseRotationItem(key, cmds[i].Val())
		if err != nil {
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}
