package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/metrics"
	"github.com/goodtune/focusd/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultDays is how many days of relax history are kept
	DefaultDays = 90

	// DefaultSchedule runs the janitor shortly after midnight
	DefaultSchedule = "5 0 * * *"

	stopTimeout = 5 * time.Second
)

// Forgetter drops in-memory knowledge of pruned days.
type Forgetter interface {
	Forget(cutoff clock.DayKey)
}

// Config holds janitor configuration
type Config struct {
	Days     int
	Schedule string
	Location *time.Location
}

// Janitor prunes relax day rows and sessions older than the retention window.
// Each calendar day is pruned at most once, even across restarts.
type Janitor struct {
	relax    storage.RelaxStore
	marks    storage.MarkStore
	forget   Forgetter
	clock    clock.Clock
	days     int
	schedule string
	loc      *time.Location
	logger   zerolog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJanitor creates a retention janitor. forget may be nil.
func NewJanitor(relax storage.RelaxStore, marks storage.MarkStore, forget Forgetter, clk clock.Clock, config Config, logger zerolog.Logger) (*Janitor, error) {
	if config.Days == 0 {
		config.Days = DefaultDays
	}
	if config.Days < 0 {
		return nil, fmt.Errorf("invalid retention days: %d", config.Days)
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", config.Schedule, err)
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Janitor{
		relax:    relax,
		marks:    marks,
		forget:   forget,
		clock:    clk,
		days:     config.Days,
		schedule: config.Schedule,
		loc:      config.Location,
		logger:   logger.With().Str("component", "retention").Logger(),
	}, nil
}

// Start schedules the janitor and runs one pass immediately so a daemon that
// was down at the scheduled time still catches up.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil {
		return fmt.Errorf("retention janitor already started")
	}

	c := cron.New(cron.WithLocation(j.loc))
	if _, err := c.AddFunc(j.schedule, func() { j.run(ctx) }); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	c.Start()
	j.cron = c

	go j.run(ctx)

	j.logger.Info().
		Str("schedule", j.schedule).
		Int("days", j.days).
		Msg("Retention janitor started")
	return nil
}

// Stop halts the schedule and waits briefly for a running pass.
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-time.After(stopTimeout):
		j.logger.Warn().Msg("Timed out waiting for retention pass to finish")
	}
	j.logger.Info().Msg("Retention janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error().Err(err).Msg("Retention pass failed")
	}
}

// RunOnce prunes days older than the window ending today. It returns the number
// of day rows removed, or zero when today's pass already ran.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	today := clock.DayOf(j.clock.Now(), j.loc)
	mark := "retention:" + today.String()

	done, err := j.marks.Has(ctx, mark)
	if err != nil {
		return 0, fmt.Errorf("check retention mark: %w", err)
	}
	if done {
		j.logger.Debug().Str("day", today.String()).Msg("Retention already ran today")
		return 0, nil
	}

	cutoff := today.AddDays(-j.days)
	deleted, err := j.relax.DeleteDaysBefore(ctx, cutoff.String())
	if err != nil {
		return 0, fmt.Errorf("delete relax days before %s: %w", cutoff, err)
	}

	if j.forget != nil {
		j.forget.Forget(cutoff)
	}
	metrics.RetentionDaysPruned.Add(float64(deleted))

	// Marked after the delete so a failed pass is retried on the next run.
	if _, err := j.marks.Mark(ctx, mark); err != nil {
		return deleted, fmt.Errorf("record retention mark: %w", err)
	}

	j.logger.Info().
		Int("days_deleted", deleted).
		Str("cutoff", cutoff.String()).
		Msg("Relax history pruned")
	return deleted, nil
}
