package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/focusd/internal/metrics"
	"github.com/goodtune/focusd/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultMinChangeInterval is the shortest time between two selections
	DefaultMinChangeInterval = 6 * time.Hour

	// DefaultCandidateLimit bounds how many least-shown items are considered
	DefaultCandidateLimit = 8
)

// Config holds selector configuration
type Config struct {
	MinChangeInterval time.Duration
	CandidateLimit    int
}

// Selection is the item to display.
type Selection struct {
	Item
	Key        string    `json:"key"`
	Changed    bool      `json:"changed"`
	LastChange time.Time `json:"last_change"`
}

// Selector picks the header item, changing it at most once per interval and
// preferring the least shown items.
type Selector struct {
	store     storage.RotationStore
	pool      *Pool
	minChange time.Duration
	limit     int
	seeded    bool
	logger    zerolog.Logger
	mu        sync.Mutex
}

// NewSelector creates a selector over pool.
func NewSelector(store storage.RotationStore, pool *Pool, config Config, logger zerolog.Logger) *Selector {
	if config.MinChangeInterval == 0 {
		config.MinChangeInterval = DefaultMinChangeInterval
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = DefaultCandidateLimit
	}

	return &Selector{
		store:     store,
		pool:      pool,
		minChange: config.MinChangeInterval,
		limit:     config.CandidateLimit,
		logger:    logger.With().Str("component", "rotation").Logger(),
	}
}

// Pool returns the selector's pool.
func (s *Selector) Pool() *Pool {
	return s.pool
}

// Selection returns the item to show at now, rotating to a new one when the
// current selection is older than the minimum change interval.
func (s *Selector) Selection(ctx context.Context, now time.Time) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSeeded(ctx); err != nil {
		return Selection{}, err
	}

	state, err := s.store.GetState(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("get rotation state: %w", err)
	}

	// A key that left the pool is still honoured inside the window; it decodes
	// to the default item until the next change.
	current := state.CurrentKey
	if current != "" && now.UnixMilli()-state.LastChangeMs < s.minChange.Milliseconds() {
		if !s.pool.Contains(current) {
			s.logger.Warn().Str("key", current).Msg("Current rotation key is not in the pool, showing default")
		}
		metrics.RotationSelections.WithLabelValues("kept").Inc()
		return s.selection(current, false, state.LastChangeMs), nil
	}

	candidates, err := s.store.Candidates(ctx, s.pool.Keys(), s.limit)
	if err != nil {
		return Selection{}, fmt.Errorf("query rotation candidates: %w", err)
	}

	chosen := ""
	for _, candidate := range candidates {
		if candidate.Key != current && s.pool.Contains(candidate.Key) {
			chosen = candidate.Key
			break
		}
	}
	outcome := "changed"
	if chosen == "" {
		chosen = current
		outcome = "repeated"
	}
	if chosen == "" {
		chosen = s.pool.DefaultKey()
	}

	nowMs := now.UnixMilli()
	if err := s.store.Commit(ctx, chosen, nowMs); err != nil {
		return Selection{}, fmt.Errorf("commit rotation selection: %w", err)
	}
	metrics.RotationSelections.WithLabelValues(outcome).Inc()

	s.logger.Info().
		Str("previous", state.CurrentKey).
		Str("key", chosen).
		Msg("Rotation selection changed")

	return s.selection(chosen, true, nowMs), nil
}

// Current returns the stored selection without rotating. ok is false when
// nothing has been selected yet.
func (s *Selector) Current(ctx context.Context) (sel Selection, ok bool, err error) {
	state, err := s.store.GetState(ctx)
	if err != nil {
		return Selection{}, false, fmt.Errorf("get rotation state: %w", err)
	}
	if state.CurrentKey == "" {
		return Selection{}, false, nil
	}
	return s.selection(state.CurrentKey, false, state.LastChangeMs), true, nil
}

// Items returns the stored counters of pool members, least shown first.
func (s *Selector) Items(ctx context.Context) ([]storage.RotationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSeeded(ctx); err != nil {
		return nil, err
	}
	items, err := s.store.Candidates(ctx, s.pool.Keys(), 0)
	if err != nil {
		return nil, fmt.Errorf("list rotation items: %w", err)
	}
	return items, nil
}

// ensureSeeded inserts a row for every pool item once per selector.
func (s *Selector) ensureSeeded(ctx context.Context) error {
	if s.seeded {
		return nil
	}

	items := make([]storage.RotationItem, 0, s.pool.Len())
	for ordinal, item := range s.pool.items {
		items = append(items, storage.RotationItem{
			Key:     item.Key(),
			Type:    item.Type,
			Ordinal: ordinal,
		})
	}
	if err := s.store.SeedItems(ctx, items); err != nil {
		return fmt.Errorf("seed rotation items: %w", err)
	}

	s.seeded = true
	s.logger.Debug().Int("items", len(items)).Msg("Rotation pool seeded")
	return nil
}

func (s *Selector) selection(key string, changed bool, lastChangeMs int64) Selection {
	item := s.pool.Decode(key)
	return Selection{
		Item:       item,
		Key:        item.Key(),
		Changed:    changed,
		LastChange: time.UnixMilli(lastChangeMs).UTC(),
	}
}
