package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/focusd/internal/storage"
	"go.etcd.io/bbolt"
)

func TestRelaxStoreIntervalLifecycle(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	relax := store.Relax()
	day := "2024-01-02"

	if err := relax.EnsureDay(ctx, day); err != nil {
		t.Fatalf("ensure day: %v", err)
	}
	// Second ensure must not reset anything.
	if err := relax.EnsureDay(ctx, day); err != nil {
		t.Fatalf("ensure day again: %v", err)
	}

	opened, err := relax.OpenInterval(ctx, day, 1_000)
	if err != nil {
		t.Fatalf("open interval: %v", err)
	}
	if !opened {
		t.Fatal("expected interval to open")
	}

	opened, err = relax.OpenInterval(ctx, day, 5_000)
	if err != nil {
		t.Fatalf("open interval again: %v", err)
	}
	if opened {
		t.Fatal("expected second open to be a no-op")
	}

	result, err := relax.CloseInterval(ctx, day, 61_000)
	if err != nil {
		t.Fatalf("close interval: %v", err)
	}
	if !result.Closed || result.CommittedMs != 60_000 || result.SinceMs != 1_000 {
		t.Fatalf("unexpected close result: %+v", result)
	}

	result, err = relax.CloseInterval(ctx, day, 120_000)
	if err != nil {
		t.Fatalf("close idle interval: %v", err)
	}
	if result.Closed {
		t.Fatal("expected closing an idle row to be a no-op")
	}
	if result.UsedMs != 60_000 {
		t.Errorf("expected used 60000 reported, got %d", result.UsedMs)
	}

	quota, err := relax.GetDay(ctx, day)
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if quota.UsedMs != 60_000 || quota.Active() {
		t.Errorf("unexpected quota row: %+v", quota)
	}
}

func TestRelaxStoreCloseClampsNegativeElapsed(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	relax := store.Relax()

	if _, err := relax.OpenInterval(ctx, "2024-01-02", 10_000); err != nil {
		t.Fatalf("open interval: %v", err)
	}
	result, err := relax.CloseInterval(ctx, "2024-01-02", 5_000)
	if err != nil {
		t.Fatalf("close interval: %v", err)
	}
	if result.CommittedMs != 0 || result.UsedMs != 0 {
		t.Errorf("expected zero commit for clock going backwards, got %+v", result)
	}
}

func TestRelaxStoreMissingDay(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	if _, err := store.Relax().GetDay(context.Background(), "2024-01-02"); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRelaxStoreMalformedRowReadsDefaults(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	day := "2024-01-02"
	err := store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketRelaxDaily)).Put([]byte(day), []byte(`{"day":"2024-01-02","used_ms":"lots","active_since_ms":"soon"}`))
	})
	if err != nil {
		t.Fatalf("write malformed row: %v", err)
	}

	quota, err := store.Relax().GetDay(context.Background(), day)
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if quota.UsedMs != 0 || quota.ActiveSinceMs != nil {
		t.Errorf("expected defaults for malformed fields, got %+v", quota)
	}
}

func TestRelaxStoreDeleteDaysBefore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	relax := store.Relax()

	for _, day := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		if err := relax.EnsureDay(ctx, day); err != nil {
			t.Fatalf("ensure day %s: %v", day, err)
		}
		if err := relax.AddSession(ctx, storage.RelaxSession{
			ID:         "s-" + day,
			Day:        day,
			StartedAt:  time.Now(),
			EndedAt:    time.Now(),
			DurationMs: 1000,
			Reason:     storage.CloseReasonStopped,
		}); err != nil {
			t.Fatalf("add session: %v", err)
		}
	}

	deleted, err := relax.DeleteDaysBefore(ctx, "2024-01-03")
	if err != nil {
		t.Fatalf("delete days before: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted days, got %d", deleted)
	}

	days, err := relax.ListDays(ctx)
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 1 || days[0].Day != "2024-01-03" {
		t.Errorf("unexpected remaining days: %+v", days)
	}

	sessions, err := relax.ListSessions(ctx, "2024-01-01")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected sessions of deleted day to be gone, got %d", len(sessions))
	}
	sessions, err = relax.ListSessions(ctx, "2024-01-03")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session kept, got %d", len(sessions))
	}
}

func TestRotationStoreSeedAndCommit(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	rotation := store.Rotation()

	items := []storage.RotationItem{
		{Key: "image:0", Type: "image", Ordinal: 0},
		{Key: "image:1", Type: "image", Ordinal: 1},
		{Key: "quote:0", Type: "quote", Ordinal: 2},
	}
	if err := rotation.SeedItems(ctx, items); err != nil {
		t.Fatalf("seed items: %v", err)
	}

	if err := rotation.Commit(ctx, "image:0", 1_000); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// Reseeding keeps counters.
	if err := rotation.SeedItems(ctx, items); err != nil {
		t.Fatalf("reseed items: %v", err)
	}

	state, err := rotation.GetState(ctx)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.CurrentKey != "image:0" || state.LastChangeMs != 1_000 {
		t.Errorf("unexpected state: %+v", state)
	}

	candidates, err := rotation.Candidates(ctx, []string{"image:0", "image:1", "quote:0"}, 8)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	want := []string{"image:1", "quote:0", "image:0"}
	if len(candidates) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(candidates))
	}
	for i, key := range want {
		if candidates[i].Key != key {
			t.Errorf("candidate %d = %s, want %s", i, candidates[i].Key, key)
		}
	}
	if candidates[2].DisplayCount != 1 || candidates[2].LastShownMs != 1_000 {
		t.Errorf("unexpected committed item: %+v", candidates[2])
	}

	limited, err := rotation.Candidates(ctx, []string{"image:0", "image:1", "quote:0"}, 1)
	if err != nil {
		t.Fatalf("limited candidates: %v", err)
	}
	if len(limited) != 1 || limited[0].Key != "image:1" {
		t.Errorf("unexpected limited candidates: %+v", limited)
	}
}

func TestRotationStoreEmptyState(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	state, err := store.Rotation().GetState(context.Background())
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.CurrentKey != "" || state.LastChangeMs != 0 {
		t.Errorf("expected empty state, got %+v", state)
	}
}

func TestMarkStore(t *testing.T) {
	store := openTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	marks := store.Marks()

	created, err := marks.Mark(ctx, "retention:2024-01-02")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if !created {
		t.Fatal("expected first mark to be created")
	}
	created, err = marks.Mark(ctx, "retention:2024-01-02")
	if err != nil {
		t.Fatalf("mark again: %v", err)
	}
	if created {
		t.Fatal("expected second mark to be a no-op")
	}

	has, err := marks.Has(ctx, "retention:2024-01-02")
	if err != nil || !has {
		t.Fatalf("expected mark present, has=%v err=%v", has, err)
	}
	has, err = marks.Has(ctx, "retention:2024-01-03")
	if err != nil || has {
		t.Fatalf("expected mark absent, has=%v err=%v", has, err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "focusd.bolt")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
