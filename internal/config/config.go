// Package config loads the cost engine's runtime configuration (spec
// §10): connection string, monetary rounding scale, ingest clock skew, and
// queue/worker tunables. Load() mirrors the teacher's getenv/getenvInt
// environment-only path; LoadFromFile layers a config file underneath the
// environment via viper for callers that want one.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/logx"
	"github.com/globalbusinessadvisors/llm-cost-ops-sub006/internal/money"
)

// Config is the engine's resolved runtime configuration.
type Config struct {
	// DatabaseURL selects the storage backend: a postgres:// DSN for
	// storage/postgres, or a file path (or ":memory:") for storage/sqlite.
	DatabaseURL string
	// MonetaryScale is the number of fractional digits cost records are
	// rounded to (spec §3, "scale up to 10").
	MonetaryScale int32
	// ClockSkew bounds how far in the future an ingested usage record's
	// timestamp may be relative to ingest time (spec §4.4).
	ClockSkew time.Duration
	// QueueDepth bounds how many usage records may be pending cost
	// calculation before ingest applies backpressure (spec §5, §6).
	QueueDepth int
	// WorkerInterval is the async worker's polling interval (spec §4.4).
	WorkerInterval time.Duration
	// WorkerBatchSize bounds how many pending records one worker pass prices.
	WorkerBatchSize int
}

const (
	defaultDatabaseURL     = "costengine.db"
	defaultMonetaryScale   = money.DefaultScale
	defaultClockSkew       = 5 * time.Minute
	defaultQueueDepth      = 10000
	defaultWorkerInterval  = 5 * time.Second
	defaultWorkerBatchSize = 100
)

// Load resolves Config from environment variables, following the teacher's
// getenv/getenvInt convention. This is the default path — no config file is
// required to run costctl.
func Load() Config {
	log := logx.WithComponent("config")

	scale := getenvInt("MONETARY_SCALE", int(defaultMonetaryScale))
	if int32(scale) > money.MaxScale {
		log.Warn("MONETARY_SCALE exceeds MaxScale, clamping", "requested", scale, "max", money.MaxScale)
		scale = int(money.MaxScale)
	}

	cfg := Config{
		DatabaseURL:     getenv("DATABASE_URL", defaultDatabaseURL),
		MonetaryScale:   int32(scale),
		ClockSkew:       getenvDuration("CLOCK_SKEW_SECONDS", defaultClockSkew),
		QueueDepth:      getenvInt("COST_QUEUE_DEPTH", defaultQueueDepth),
		WorkerInterval:  getenvDuration("COST_WORKER_INTERVAL_SECONDS", defaultWorkerInterval),
		WorkerBatchSize: getenvInt("COST_WORKER_BATCH_SIZE", defaultWorkerBatchSize),
	}

	log.Info("config loaded",
		"database_url_set", cfg.DatabaseURL != defaultDatabaseURL,
		"monetary_scale", cfg.MonetaryScale,
		"queue_depth", cfg.QueueDepth)
	return cfg
}

// LoadFromFile layers a YAML/JSON/TOML config file (if path is non-empty
// and exists) underneath environment variables and the same defaults
// Load() uses, via spf13/viper. Environment variables always win over the
// file, matching Load()'s "env is authoritative" contract.
func LoadFromFile(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("database_url", defaultDatabaseURL)
	v.SetDefault("monetary_scale", int(defaultMonetaryScale))
	v.SetDefault("clock_skew_seconds", int(defaultClockSkew.Seconds()))
	v.SetDefault("cost_queue_depth", defaultQueueDepth)
	v.SetDefault("cost_worker_interval_seconds", int(defaultWorkerInterval.Seconds()))
	v.SetDefault("cost_worker_batch_size", defaultWorkerBatchSize)

	v.SetEnvPrefix("")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	scale := v.GetInt("monetary_scale")
	if int32(scale) > money.MaxScale {
		scale = int(money.MaxScale)
	}

	return Config{
		DatabaseURL:     v.GetString("database_url"),
		MonetaryScale:   int32(scale),
		ClockSkew:       time.Duration(v.GetInt("clock_skew_seconds")) * time.Second,
		QueueDepth:      v.GetInt("cost_queue_depth"),
		WorkerInterval:  time.Duration(v.GetInt("cost_worker_interval_seconds")) * time.Second,
		WorkerBatchSize: v.GetInt("cost_worker_batch_size"),
	}, nil
}

// Snapshot renders cfg for structured logging without ever emitting a
// connection string's credentials.
func (c Config) Snapshot() map[string]any {
	return map[string]any{
		"monetary_scale":    c.MonetaryScale,
		"clock_skew":        c.ClockSkew.String(),
		"queue_depth":       c.QueueDepth,
		"worker_interval":   c.WorkerInterval.String(),
		"worker_batch_size": c.WorkerBatchSize,
		"database_url_set":  c.DatabaseURL != "" && c.DatabaseURL != defaultDatabaseURL,
	}
}

func getenv(k, fallback string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(k string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getenvDuration(k string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
