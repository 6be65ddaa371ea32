package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOCUSD_STORAGE_PATH", filepath.Join(dir, "focusd.bolt"))

	cfg, err := Load(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Type != "bolt" {
		t.Errorf("expected bolt storage, got %s", cfg.Storage.Type)
	}
	if cfg.Relax.DailyCap != "60m" || cfg.Relax.ChunkCap != "15m" {
		t.Errorf("unexpected relax caps: %+v", cfg.Relax)
	}
	if cfg.Rotation.MinChangeInterval != "6h" || cfg.Rotation.CandidateLimit != 8 {
		t.Errorf("unexpected rotation defaults: %+v", cfg.Rotation)
	}
	if cfg.Rotation.DefaultKey != "quote:0" {
		t.Errorf("unexpected default key: %s", cfg.Rotation.DefaultKey)
	}
	if cfg.Retention.Schedule != "5 0 * * *" || cfg.Retention.Days != 90 {
		t.Errorf("unexpected retention defaults: %+v", cfg.Retention)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "focusd.yaml")
	content := `
storage:
  type: sqlite
  path: ` + filepath.Join(dir, "focusd.db") + `
relax:
  daily_cap: 45m
  chunk_cap: 10m
  timezone: UTC
rotation:
  images: 2
  quotes: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FOCUSD_RELAX_CHUNK_CAP", "5m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Storage.Type != "sqlite" {
		t.Errorf("expected sqlite storage, got %s", cfg.Storage.Type)
	}
	if cfg.Relax.DailyCap != "45m" {
		t.Errorf("expected daily cap from file, got %s", cfg.Relax.DailyCap)
	}
	if cfg.Relax.ChunkCap != "5m" {
		t.Errorf("expected chunk cap from env, got %s", cfg.Relax.ChunkCap)
	}
	if cfg.Rotation.Images != 2 || cfg.Rotation.Quotes != 0 {
		t.Errorf("unexpected pool sizes: %+v", cfg.Rotation)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(cfg *Config) {}},
		{name: "unknown storage", mutate: func(cfg *Config) { cfg.Storage.Type = "etcd" }, wantErr: true},
		{name: "redis without host", mutate: func(cfg *Config) {
			cfg.Storage.Type = "redis"
			cfg.Storage.Redis.Host = ""
		}, wantErr: true},
		{name: "bad duration", mutate: func(cfg *Config) { cfg.Relax.ChunkCap = "soon" }, wantErr: true},
		{name: "zero duration", mutate: func(cfg *Config) { cfg.Relax.DailyCap = "0s" }, wantErr: true},
		{name: "bad timezone", mutate: func(cfg *Config) { cfg.Relax.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "empty pool", mutate: func(cfg *Config) {
			cfg.Rotation.Images = 0
			cfg.Rotation.Quotes = 0
		}, wantErr: true},
		{name: "bad schedule", mutate: func(cfg *Config) { cfg.Retention.Schedule = "every day" }, wantErr: true},
		{name: "bad schedule ignored when disabled", mutate: func(cfg *Config) {
			cfg.Retention.Enabled = false
			cfg.Retention.Schedule = "every day"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()

	return &Config{
		Server:  ServerConfig{BindAddress: "127.0.0.1", APIPort: 7878, MetricsPort: 9090},
		Storage: StorageConfig{Type: "bolt", Path: filepath.Join(t.TempDir(), "focusd.bolt"), Redis: RedisConfig{Host: "localhost"}},
		Relax:   RelaxConfig{DailyCap: "60m", ChunkCap: "15m"},
		Rotation: RotationConfig{
			MinChangeInterval: "6h",
			CandidateLimit:    8,
			Images:            3,
			Quotes:            10,
			DefaultKey:        "quote:0",
		},
		Gate:      GateConfig{IdlePollInterval: "1m", RecheckEpsilon: "1s"},
		Retention: RetentionConfig{Enabled: true, Days: 90, Schedule: "5 0 * * *"},
	}
}

func TestDefaultsAndKeys(t *testing.T) {
	cfg := Defaults()
	if cfg.Storage.Type != "bolt" || cfg.Relax.DailyCap != "60m" || cfg.Retention.Schedule != "5 0 * * *" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	keys := map[string]bool{}
	for _, key := range Keys() {
		keys[key] = true
	}
	for _, want := range []string{"relax.chunk_cap", "gate.block_command", "storage.redis.password", "rotation.default_key"} {
		if !keys[want] {
			t.Errorf("expected key %s to be known", want)
		}
	}
	if keys["relax"] {
		t.Error("expected only leaf keys")
	}
}
