package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goodtune/focusd/internal/clock"
	"github.com/goodtune/focusd/internal/config"
	"github.com/goodtune/focusd/internal/relax"
	"github.com/goodtune/focusd/internal/rotation"
	"github.com/goodtune/focusd/internal/storage"
	"github.com/goodtune/focusd/internal/storage/bolt"
	"github.com/goodtune/focusd/internal/storage/redis"
	"github.com/goodtune/focusd/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// components are the pieces shared by the server and the one-shot commands.
type components struct {
	store    storage.Store
	tracker  *relax.Tracker
	selector *rotation.Selector
	location *time.Location
}

func openComponents(cfg *config.Config, logger zerolog.Logger) (*components, error) {
	loc, err := clock.LoadLocation(cfg.Relax.Timezone)
	if err != nil {
		return nil, err
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tracker, err := relax.NewTracker(store.Relax(), relax.Config{
		DailyCap: parseDuration(cfg.Relax.DailyCap, relax.DefaultDailyCap),
		ChunkCap: parseDuration(cfg.Relax.ChunkCap, relax.DefaultChunkCap),
		Location: loc,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize relax tracker: %w", err)
	}

	pool, err := rotation.NewPool(cfg.Rotation.Images, cfg.Rotation.Quotes, cfg.Rotation.DefaultKey)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build rotation pool: %w", err)
	}

	selector := rotation.NewSelector(store.Rotation(), pool, rotation.Config{
		MinChangeInterval: parseDuration(cfg.Rotation.MinChangeInterval, rotation.DefaultMinChangeInterval),
		CandidateLimit:    cfg.Rotation.CandidateLimit,
	}, logger)

	return &components{
		store:    store,
		tracker:  tracker,
		selector: selector,
		location: loc,
	}, nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		return bolt.Open(cfg.Path)
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected bolt, sqlite or redis)", storageType)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// quietLogger is used by one-shot commands so their output stays readable.
func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
