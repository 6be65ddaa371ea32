package relax

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/metrics"
	"github.com/goodtune/focusd/internal/storage"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultDailyCap is the relax time granted per calendar day
	DefaultDailyCap = 60 * time.Minute

	// DefaultChunkCap is the longest continuous relax interval before a re-poll
	DefaultChunkCap = 15 * time.Minute

	ensuredDaysCacheSize = 8
)

// Config holds tracker configuration
type Config struct {
	DailyCap time.Duration
	ChunkCap time.Duration
	Location *time.Location // day boundaries; nil means time.Local
}

// Tracker owns the per-day relax allowance.
type Tracker struct {
	store    storage.RelaxStore
	dailyCap time.Duration
	chunkCap time.Duration
	loc      *time.Location
	ensured  *lru.Cache[string, struct{}] // days whose row is known to exist
	gaugeDay string                       // latest day published to the relax gauges
	logger   zerolog.Logger
	mu       sync.Mutex
}

// NewTracker creates a relax tracker backed by store.
func NewTracker(store storage.RelaxStore, config Config, logger zerolog.Logger) (*Tracker, error) {
	if config.DailyCap == 0 {
		config.DailyCap = DefaultDailyCap
	}
	if config.ChunkCap == 0 {
		config.ChunkCap = DefaultChunkCap
	}
	if config.DailyCap < 0 || config.ChunkCap < 0 {
		return nil, fmt.Errorf("relax caps must be positive")
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	cache, err := lru.New[string, struct{}](ensuredDaysCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create day cache: %w", err)
	}

	return &Tracker{
		store:    store,
		dailyCap: config.DailyCap,
		chunkCap: config.ChunkCap,
		loc:      config.Location,
		ensured:  cache,
		logger:   logger.With().Str("component", "relax").Logger(),
	}, nil
}

// Day returns the calendar day now falls on for this tracker.
func (t *Tracker) Day(now time.Time) clock.DayKey {
	return clock.DayOf(now, t.loc)
}

// Location returns the location used for day boundaries.
func (t *Tracker) Location() *time.Location {
	return t.loc
}

// DailyCap returns the configured daily allowance.
func (t *Tracker) DailyCap() time.Duration {
	return t.dailyCap
}

// State returns today's derived quota without changing it.
func (t *Tracker) State(ctx context.Context, now time.Time) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.Day(now)
	quota, err := t.load(ctx, day)
	if err != nil {
		return State{}, err
	}
	return t.derive(day, quota, now), nil
}

// Start opens an interval if today still has budget. Starting while already
// active is a no-op.
func (t *Tracker) Start(ctx context.Context, now time.Time) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.Day(now)
	quota, err := t.load(ctx, day)
	if err != nil {
		return State{}, err
	}

	state := t.derive(day, quota, now)
	if quota.Active() {
		return state, nil
	}
	if state.Remaining <= 0 {
		t.logger.Debug().Str("day", day.String()).Msg("Relax budget exhausted, not starting")
		return state, nil
	}

	opened, err := t.store.OpenInterval(ctx, day.String(), now.UnixMilli())
	if err != nil {
		return State{}, fmt.Errorf("open relax interval: %w", err)
	}
	if opened {
		metrics.RelaxIntervalsOpened.Inc()
		t.logger.Info().
			Str("day", day.String()).
			Dur("remaining", state.Remaining).
			Msg("Relax interval started")
	}

	return t.reload(ctx, day, now)
}

// Stop closes the open interval and commits its elapsed time. Stopping while
// idle is a no-op.
func (t *Tracker) Stop(ctx context.Context, now time.Time) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.Day(now)
	if err := t.ensureReady(ctx, day); err != nil {
		return State{}, err
	}
	if err := t.close(ctx, day, now, storage.CloseReasonStopped); err != nil {
		return State{}, err
	}
	return t.reload(ctx, day, now)
}

// Tick closes the open interval once its chunk or the daily budget has run out.
// The full elapsed time is committed even when the tick arrives late.
func (t *Tracker) Tick(ctx context.Context, now time.Time) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	day := t.Day(now)
	quota, err := t.load(ctx, day)
	if err != nil {
		return State{}, err
	}

	state := t.derive(day, quota, now)
	if !quota.Active() || (state.Remaining > 0 && state.ChunkRemaining > 0) {
		return state, nil
	}

	reason := storage.CloseReasonChunkExhausted
	if state.Remaining <= 0 {
		reason = storage.CloseReasonBudgetExhausted
	}
	if err := t.close(ctx, day, now, reason); err != nil {
		return State{}, err
	}
	return t.reload(ctx, day, now)
}

// Sessions returns the closed intervals recorded for day.
func (t *Tracker) Sessions(ctx context.Context, day clock.DayKey) ([]storage.RelaxSession, error) {
	sessions, err := t.store.ListSessions(ctx, day.String())
	if err != nil {
		return nil, fmt.Errorf("list relax sessions: %w", err)
	}
	return sessions, nil
}

// Days returns every stored day row, oldest first.
func (t *Tracker) Days(ctx context.Context) ([]storage.DailyQuota, error) {
	days, err := t.store.ListDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list relax days: %w", err)
	}
	return days, nil
}

// Forget drops cached knowledge of days before cutoff, after retention removed
// their rows.
func (t *Tracker) Forget(cutoff clock.DayKey) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, day := range t.ensured.Keys() {
		if day < cutoff.String() {
			t.ensured.Remove(day)
		}
	}
}

// ensureReady makes sure the row for day exists, hitting the store at most once
// per day while it stays cached.
func (t *Tracker) ensureReady(ctx context.Context, day clock.DayKey) error {
	key := day.String()
	if t.ensured.Contains(key) {
		return nil
	}
	if err := t.store.EnsureDay(ctx, key); err != nil {
		return fmt.Errorf("ensure relax day %s: %w", key, err)
	}
	t.ensured.Add(key, struct{}{})
	return nil
}

func (t *Tracker) load(ctx context.Context, day clock.DayKey) (storage.DailyQuota, error) {
	if err := t.ensureReady(ctx, day); err != nil {
		return storage.DailyQuota{}, err
	}

	quota, err := t.store.GetDay(ctx, day.String())
	if errors.Is(err, storage.ErrNotFound) {
		// Row vanished behind the cache; recreate it on the next call.
		t.ensured.Remove(day.String())
		return storage.DailyQuota{Day: day.String()}, nil
	}
	if err != nil {
		return storage.DailyQuota{}, fmt.Errorf("get relax day %s: %w", day, err)
	}
	return *quota, nil
}

func (t *Tracker) reload(ctx context.Context, day clock.DayKey, now time.Time) (State, error) {
	quota, err := t.load(ctx, day)
	if err != nil {
		return State{}, err
	}
	return t.derive(day, quota, now), nil
}

func (t *Tracker) close(ctx context.Context, day clock.DayKey, now time.Time, reason storage.CloseReason) error {
	result, err := t.store.CloseInterval(ctx, day.String(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("close relax interval: %w", err)
	}
	if !result.Closed {
		return nil
	}

	committed := time.Duration(result.CommittedMs) * time.Millisecond
	metrics.RelaxIntervalsClosed.WithLabelValues(string(reason)).Inc()
	metrics.RelaxCommittedSeconds.Add(committed.Seconds())

	t.logger.Info().
		Str("day", day.String()).
		Str("reason", string(reason)).
		Dur("committed", committed).
		Int64("used_ms", result.UsedMs).
		Msg("Relax interval closed")

	session := storage.RelaxSession{
		ID:         uuid.NewString(),
		Day:        day.String(),
		StartedAt:  clock.FromMillis(result.SinceMs).UTC(),
		EndedAt:    now.UTC(),
		DurationMs: result.CommittedMs,
		Reason:     reason,
	}
	// The quota commit already landed; a lost history entry must not fail it.
	if err := t.store.AddSession(ctx, session); err != nil {
		t.logger.Error().Err(err).Str("day", day.String()).Msg("Failed to record relax session")
	}
	return nil
}

func (t *Tracker) derive(day clock.DayKey, quota storage.DailyQuota, now time.Time) State {
	state := State{Day: day}

	var elapsedMs int64
	if quota.Active() {
		since := clock.FromMillis(*quota.ActiveSinceMs)
		state.ActiveSince = &since
		elapsedMs = max(0, now.UnixMilli()-*quota.ActiveSinceMs)
	}

	capMs := t.dailyCap.Milliseconds()
	usedMs := quota.UsedMs + elapsedMs
	remainingMs := max(0, capMs-usedMs)

	var chunkRemainingMs int64
	if quota.Active() {
		chunkRemainingMs = max(0, min(remainingMs, t.chunkCap.Milliseconds()-elapsedMs))
	}

	state.Used = time.Duration(min(usedMs, capMs)) * time.Millisecond
	state.Remaining = time.Duration(remainingMs) * time.Millisecond
	state.ChunkRemaining = time.Duration(chunkRemainingMs) * time.Millisecond
	state.IsRelaxing = quota.Active() && chunkRemainingMs > 0 && remainingMs > 0

	t.publish(state)
	return state
}

// publish updates the relax gauges unless state belongs to a day older than
// one already published.
func (t *Tracker) publish(state State) {
	day := state.Day.String()
	if day < t.gaugeDay {
		return
	}
	t.gaugeDay = day

	metrics.RelaxUsedSeconds.Set(state.Used.Seconds())
	metrics.RelaxRemainingSeconds.Set(state.Remaining.Seconds())
	if state.IsRelaxing {
		metrics.RelaxActive.Set(1)
	} else {
		metrics.RelaxActive.Set(0)
	}
}
