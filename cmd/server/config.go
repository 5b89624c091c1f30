package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type serverConfig struct {
	Addr          string        `env:"RAID_ADDR"`
	ConfigDir     string        `env:"RAID_CONFIG_DIR"`
	DataDir       string        `env:"RAID_DATA_DIR"`
	TuningPath    string        `env:"RAID_TUNING"`
	IndexBackend  string        `env:"RAID_INDEX_BACKEND"`
	DisableEvents bool          `env:"RAID_DISABLE_EVENTS"`
	AuthToken     string        `env:"RAID_AUTH_TOKEN"`
	SnapshotEvery time.Duration `env:"RAID_SNAPSHOT_EVERY"`
	SnapshotKeep  int           `env:"RAID_SNAPSHOT_KEEP"`
	LoadLatest    bool          `env:"RAID_LOAD_LATEST_SNAPSHOT"`
	AdminHTTP     bool          `env:"RAID_ENABLE_ADMIN_HTTP"`

	D1 d1Config `envPrefix:"RAID_INDEX_D1_"`
}

type d1Config struct {
	IngestURL string        `env:"INGEST_URL"`
	Token     string        `env:"TOKEN"`
	ShardID   string        `env:"SHARD_ID" envDefault:"raids"`
	BatchSize int           `env:"BATCH_SIZE" envDefault:"128"`
	FlushMS   int           `env:"FLUSH_MS" envDefault:"500"`
	Timeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"5s"`
}

// loadConfig parses flags, then lets RAID_* environment variables override
// them.
func loadConfig(args []string) (serverConfig, error) {
	var cfg serverConfig
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", ":8080", "http listen address")
	fs.StringVar(&cfg.ConfigDir, "configs", "./configs", "config directory")
	fs.StringVar(&cfg.DataDir, "data", "./data", "runtime data directory")
	fs.StringVar(&cfg.TuningPath, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&cfg.IndexBackend, "index", "sqlite", "index backend: sqlite|d1|none")
	fs.BoolVar(&cfg.DisableEvents, "disable_events", false, "do not stream raid events to <data>/events")
	fs.StringVar(&cfg.AuthToken, "auth_token", "", "shared token required in HELLO (empty to disable)")
	fs.DurationVar(&cfg.SnapshotEvery, "snapshot_every", 0, "snapshot interval (default: tuning snapshot_every_ticks)")
	fs.IntVar(&cfg.SnapshotKeep, "snapshot_keep", 8, "snapshots to keep on disk")
	fs.BoolVar(&cfg.LoadLatest, "load_latest_snapshot", true, "restore the newest snapshot from the data dir")
	fs.BoolVar(&cfg.AdminHTTP, "admin_http", true, "serve loopback-only /admin endpoints")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.IndexBackend = strings.ToLower(strings.TrimSpace(cfg.IndexBackend))
	if strings.TrimSpace(cfg.TuningPath) == "" {
		cfg.TuningPath = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	if cfg.SnapshotKeep < 1 {
		return cfg, fmt.Errorf("snapshot_keep must be >= 1")
	}
	return cfg, nil
}

// snapshotInterval converts the tuning tick interval when no explicit
// duration is configured.
func (c serverConfig) snapshotInterval(everyTicks, hz int) time.Duration {
	if c.SnapshotEvery > 0 {
		return c.SnapshotEvery
	}
	if everyTicks <= 0 || hz <= 0 {
		return 0
	}
	return time.Duration(everyTicks) * time.Second / time.Duration(hz)
}
