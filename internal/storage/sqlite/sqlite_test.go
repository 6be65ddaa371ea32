package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/focusd/internal/storage"
)

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focusd.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = store.Close() }()

	var version int
	if err := store.db.QueryRow("SELECT MAX(version) FROM migrations").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != len(getMigrations()) {
		t.Errorf("expected version %d, got %d", len(getMigrations()), version)
	}
}

func TestRelaxStoreIntervalLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	relax := store.Relax()
	day := "2024-01-02"

	opened, err := relax.OpenInterval(ctx, day, 1_000)
	if err != nil {
		t.Fatalf("open interval: %v", err)
	}
	if !opened {
		t.Fatal("expected interval to open")
	}
	if opened, _ = relax.OpenInterval(ctx, day, 2_000); opened {
		t.Fatal("expected second open to be a no-op")
	}

	result, err := relax.CloseInterval(ctx, day, 901_000)
	if err != nil {
		t.Fatalf("close interval: %v", err)
	}
	if !result.Closed || result.CommittedMs != 900_000 || result.UsedMs != 900_000 {
		t.Fatalf("unexpected close result: %+v", result)
	}

	quota, err := relax.GetDay(ctx, day)
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if quota.UsedMs != 900_000 || quota.Active() {
		t.Errorf("unexpected quota: %+v", quota)
	}
}

func TestRelaxStoreMalformedColumns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.db.Exec(`INSERT INTO relax_mode_daily (day, used_ms, active_since_ms) VALUES ('2024-01-02', 'lots', 'soon')`); err != nil {
		t.Fatalf("insert malformed row: %v", err)
	}

	quota, err := store.Relax().GetDay(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	if quota.UsedMs != 0 || quota.ActiveSinceMs != nil {
		t.Fatalf("expected defaults, got %+v", quota)
	}

	// The row is idle, so an interval can open and heals the used column.
	opened, err := store.Relax().OpenInterval(ctx, "2024-01-02", 5_000)
	if err != nil || !opened {
		t.Fatalf("expected open on malformed idle row, opened=%v err=%v", opened, err)
	}
}

func TestRelaxStoreSessionsAndRetention(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	relax := store.Relax()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, day := range []string{"2024-01-01", "2024-01-02"} {
		if err := relax.EnsureDay(ctx, day); err != nil {
			t.Fatalf("ensure day: %v", err)
		}
		if err := relax.AddSession(ctx, storage.RelaxSession{
			ID:         day,
			Day:        day,
			StartedAt:  start.AddDate(0, 0, i),
			EndedAt:    start.AddDate(0, 0, i).Add(15 * time.Minute),
			DurationMs: (15 * time.Minute).Milliseconds(),
			Reason:     storage.CloseReasonChunkExhausted,
		}); err != nil {
			t.Fatalf("add session: %v", err)
		}
	}

	sessions, err := relax.ListSessions(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Reason != storage.CloseReasonChunkExhausted {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if !sessions[0].StartedAt.Equal(start.AddDate(0, 0, 1)) {
		t.Errorf("unexpected start time: %v", sessions[0].StartedAt)
	}

	deleted, err := relax.DeleteDaysBefore(ctx, "2024-01-02")
	if err != nil {
		t.Fatalf("delete days: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted day, got %d", deleted)
	}
	if sessions, _ := relax.ListSessions(ctx, "2024-01-01"); len(sessions) != 0 {
		t.Errorf("expected old sessions removed, got %d", len(sessions))
	}
}

func TestRotationStoreCommitAndCandidates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rotation := store.Rotation()

	items := []storage.RotationItem{
		{Key: "image:0", Type: "image", Ordinal: 0},
		{Key: "quote:0", Type: "quote", Ordinal: 1},
		{Key: "quote:1", Type: "quote", Ordinal: 2},
	}
	if err := rotation.SeedItems(ctx, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := rotation.Commit(ctx, "image:0", 10); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := rotation.Commit(ctx, "quote:0", 20); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := rotation.SeedItems(ctx, items); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	candidates, err := rotation.Candidates(ctx, []string{"image:0", "quote:0", "quote:1"}, 8)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	want := []string{"quote:1", "image:0", "quote:0"}
	for i, key := range want {
		if candidates[i].Key != key {
			t.Errorf("candidate %d = %s, want %s", i, candidates[i].Key, key)
		}
	}

	state, err := rotation.GetState(ctx)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.CurrentKey != "quote:0" || state.LastChangeMs != 20 {
		t.Errorf("unexpected state: %+v", state)
	}

	if _, err := store.db.Exec(`UPDATE header_rotation_items SET display_count = 'many' WHERE item_key = 'quote:0'`); err != nil {
		t.Fatalf("corrupt counter: %v", err)
	}
	all, err := rotation.ListItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if all[0].Key != "quote:1" || all[0].DisplayCount != 0 {
		t.Errorf("unexpected first item: %+v", all[0])
	}
}

func TestMarkStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Marks().Mark(ctx, "retention:2024-01-02")
	if err != nil || !created {
		t.Fatalf("expected mark created, created=%v err=%v", created, err)
	}
	created, err = store.Marks().Mark(ctx, "retention:2024-01-02")
	if err != nil || created {
		t.Fatalf("expected duplicate mark ignored, created=%v err=%v", created, err)
	}
	has, err := store.Marks().Has(ctx, "retention:2024-01-02")
	if err != nil || !has {
		t.Fatalf("expected mark present, has=%v err=%v", has, err)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "focusd.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
