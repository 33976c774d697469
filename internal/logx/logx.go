// Package logx provides the engine's structured logging wrapper: a
// package-level slog.Logger configurable by level/format/source annotation
// and always writing to stdout, with
// WithComponent helpers so every component (calculator, pricing store,
// aggregator, forecaster, worker pool) gets a scoped logger.
package logx

import (
	"log/slog"
	"os"
	"sync"
)

var (
	instance *slog.Logger
	once     sync.Once
)

// Config controls the package-level logger's behavior.
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // json, text
	AddSource bool
}

// DefaultConfig reads LOG_LEVEL/LOG_FORMAT/LOG_SOURCE, defaulting to
// info/json/false.
func DefaultConfig() Config {
	return Config{
		Level:     getEnv("LOG_LEVEL", "info"),
		Format:    getEnv("LOG_FORMAT", "json"),
		AddSource: getEnv("LOG_SOURCE", "false") == "true",
	}
}

// Init sets up the package-level logger. Safe to call multiple times;
// only the first call takes effect.
func Init(cfg Config) {
	once.Do(func() {
		instance = build(cfg)
		slog.SetDefault(instance)
	})
}

func build(cfg Config) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// Get returns the package-level logger, initializing it with defaults on
// first use if Init was never called.
func Get() *slog.Logger {
	if instance == nil {
		Init(DefaultConfig())
	}
	return instance
}

// WithComponent scopes a logger to a named engine component.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
