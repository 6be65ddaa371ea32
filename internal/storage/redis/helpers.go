package redis

import (
	"github.com/goodtune/focusd/internal/storage"
)

const (
	keyPrefix         = "focusd:"
	relaxDaysKey      = keyPrefix + "relax:days"
	rotationItemsKey  = keyPrefix + "rotation:items"
	rotationStateKey  = keyPrefix + "rotation:state"
	relaxSessionsScan = keyPrefix + "relax:sessions:*"
)

func relaxDayKey(day string) string {
	return keyPrefix + "relax:day:" + day
}

func relaxSessionsKey(day string) string {
	return keyPrefix + "relax:sessions:" + day
}

func rotationItemKey(key string) string {
	return keyPrefix + "rotation:item:" + key
}

func markKey(key string) string {
	return keyPrefix + "mark:" + key
}

// parseDailyQuota converts a Redis hash to DailyQuota. Malformed fields read
// as defaults.
func parseDailyQuota(day string, data map[string]string) (*storage.DailyQuota, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return &storage.DailyQuota{
		Day:           day,
		UsedMs:        storage.ParseCounter(data["used_ms"]),
		ActiveSinceMs: storage.ParseNullableMillis(data["active_since_ms"]),
	}, nil
}

// parseRotationItem converts a Redis hash to RotationItem.
func parseRotationItem(key string, data map[string]string) (*storage.RotationItem, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	item := &storage.RotationItem{
		Key:          key,
		Type:         data["item_type"],
		Ordinal:      storage.ParseOrdinal(data["ordinal"]),
		DisplayCount: storage.ParseCounter(data["display_count"]),
		LastShownMs:  storage.ParseCounter(data["last_shown_ms"]),
	}
	if item.Type == "" {
		item.Type = storage.ItemTypeOf(key)
	}
	return item, nil
}

// parseRotationState converts the state hash. A missing hash is the empty
// state rather than an error.
func parseRotationState(data map[string]string) *storage.RotationState {
	return &storage.RotationState{
		CurrentKey:   data["current_key"],
		LastChangeMs: storage.ParseCounter(data["last_change_ms"]),
	}
}
