package bolt

import (
	"context"

	"github.com/goodtune/focusd/internal/storage"
	"go.etcd.io/bbolt"
)

type rotationStore struct {
	db *bbolt.DB
}

func (s *rotationStore) SeedItems(ctx context.Context, items []storage.RotationItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRotationItems)
		if err != nil {
			return err
		}
		for _, item := range items {
			row := storage.RotationItem{Key: item.Key}
			if existing := b.Get([]byte(item.Key)); existing != nil {
				row = decodeRotationItem(item.Key, existing)
				if row.Type == item.Type && row.Ordinal == item.Ordinal {
					continue
				}
			}
			row.Type = item.Type
			row.Ordinal = item.Ordinal
			if err := putJSON(b, item.Key, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *rotationStore) ListItems(ctx context.Context) ([]storage.RotationItem, error) {
	items, err := listBucket(ctx, s.db, bucketRotationItems, func(k, v []byte) storage.RotationItem {
		return decodeRotationItem(string(k), v)
	})
	if err != nil {
		return nil, err
	}
	storage.SortRotationItems(items)
	return items, nil
}

func (s *rotationStore) GetState(ctx context.Context) (*storage.RotationState, error) {
	state := &storage.RotationState{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRotationState)
		if err != nil {
			return err
		}
		if value := b.Get([]byte(rotationStateKey)); value != nil {
			*state = decodeRotationState(value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *rotationStore) Candidates(ctx context.Context, keys []string, limit int) ([]storage.RotationItem, error) {
	items := make([]storage.RotationItem, 0, len(keys))
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := bucket(tx, bucketRotationItems)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if value := b.Get([]byte(key)); value != nil {
				items = append(items, decodeRotationItem(key, value))
			}
		}
		return nil
	})
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
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		items, err := bucket(tx, bucketRotationItems)
		if err != nil {
			return err
		}
		state, err := bucket(tx, bucketRotationState)
		if err != nil {
			return err
		}

		item := storage.RotationItem{Key: key, Type: storage.ItemTypeOf(key)}
		if existing := items.Get([]byte(key)); existing != nil {
			item = decodeRotationItem(key, existing)
		}
		item.DisplayCount++
		item.LastShownMs = nowMs
		if err := putJSON(items, key, item); err != nil {
			return err
		}

		return putJSON(state, rotationStateKey, storage.RotationState{
			CurrentKey:   key,
			LastChangeMs: nowMs,
		})
	})
}

func decodeRotationItem(key string, data []byte) storage.RotationItem {
	fields := decodeFields(data)
	item := storage.RotationItem{
		Key:          key,
		Type:         rawText(fields["item_type"]),
		Ordinal:      storage.ParseOrdinal(string(fields["ordinal"])),
		DisplayCount: storage.RawCounter(fields["display_count"]),
		LastShownMs:  storage.RawCounter(fields["last_shown_ms"]),
	}
	if item.Type == "" {
		item.Type = storage.ItemTypeOf(key)
	}
	return item
}

func decodeRotationState(data []byte) storage.RotationState {
	fields := decodeFields(data)
	return storage.RotationState{
		CurrentKey:   rawText(fields["current_key"]),
		LastChangeMs: storage.RawCounter(fields["last_change_ms"]),
	}
}
