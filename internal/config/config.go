package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Relax     RelaxConfig     `mapstructure:"relax"`
	Rotation  RotationConfig  `mapstructure:"rotation"`
	Gate      GateConfig      `mapstructure:"gate"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// ServerConfig defines listener ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // bolt, sqlite or redis
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RelaxConfig defines the daily relax allowance
type RelaxConfig struct {
	DailyCap string `mapstructure:"daily_cap"`
	ChunkCap string `mapstructure:"chunk_cap"`
	Timezone string `mapstructure:"timezone"` // IANA name, empty for system local time
}

// RotationConfig defines the header rotation pool and pacing
type RotationConfig struct {
	MinChangeInterval string `mapstructure:"min_change_interval"`
	CandidateLimit    int    `mapstructure:"candidate_limit"`
	Images            int    `mapstructure:"images"`
	Quotes            int    `mapstructure:"quotes"`
	DefaultKey        string `mapstructure:"default_key"`
}

// GateConfig defines the blocking gate
type GateConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	PolicyDir        string   `mapstructure:"policy_dir"` // optional .rego override directory
	IdlePollInterval string   `mapstructure:"idle_poll_interval"`
	RecheckEpsilon   string   `mapstructure:"recheck_epsilon"`
	BlockCommand     []string `mapstructure:"block_command"`
	UnblockCommand   []string `mapstructure:"unblock_command"`
}

// RetentionConfig defines pruning of old day rows
type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Days     int    `mapstructure:"days"`
	Schedule string `mapstructure:"schedule"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("FOCUSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration built from defaults alone, without
// validation or environment overrides.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Keys returns every configuration key that has a default. Every supported
// key has one.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 7878)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/focusd/focusd.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Relax defaults
	v.SetDefault("relax.daily_cap", "60m")
	v.SetDefault("relax.chunk_cap", "15m")
	v.SetDefault("relax.timezone", "")

	// Rotation defaults
	v.SetDefault("rotation.min_change_interval", "6h")
	v.SetDefault("rotation.candidate_limit", 8)
	v.SetDefault("rotation.images", 3)
	v.SetDefault("rotation.quotes", 10)
	v.SetDefault("rotation.default_key", "quote:0")

	// Gate defaults
	v.SetDefault("gate.enabled", true)
	v.SetDefault("gate.policy_dir", "")
	v.SetDefault("gate.idle_poll_interval", "1m")
	v.SetDefault("gate.recheck_epsilon", "1s")
	v.SetDefault("gate.block_command", []string{})
	v.SetDefault("gate.unblock_command", []string{})

	// Retention defaults
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.schedule", "5 0 * * *")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort < 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt", "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
		// Ensure storage directory exists
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	durations := map[string]string{
		"relax.daily_cap":              cfg.Relax.DailyCap,
		"relax.chunk_cap":              cfg.Relax.ChunkCap,
		"rotation.min_change_interval": cfg.Rotation.MinChangeInterval,
		"gate.idle_poll_interval":      cfg.Gate.IdlePollInterval,
		"gate.recheck_epsilon":         cfg.Gate.RecheckEpsilon,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	if cfg.Relax.Timezone != "" && cfg.Relax.Timezone != "Local" {
		if _, err := time.LoadLocation(cfg.Relax.Timezone); err != nil {
			return fmt.Errorf("invalid relax.timezone: %w", err)
		}
	}

	if cfg.Rotation.Images < 0 || cfg.Rotation.Quotes < 0 {
		return fmt.Errorf("rotation pool sizes must not be negative")
	}
	if cfg.Rotation.Images+cfg.Rotation.Quotes == 0 {
		return fmt.Errorf("rotation pool must contain at least one item")
	}
	if cfg.Rotation.CandidateLimit <= 0 {
		return fmt.Errorf("invalid rotation.candidate_limit: %d", cfg.Rotation.CandidateLimit)
	}

	if cfg.Retention.Enabled {
		if cfg.Retention.Days <= 0 {
			return fmt.Errorf("invalid retention.days: %d", cfg.Retention.Days)
		}
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			return fmt.Errorf("invalid retention.schedule: %w", err)
		}
	}

	return nil
}
