// Package pricingcache adapts the pricing resolver's read path with a
// cache keyed by (provider, model, region), invalidated on every pricing
// write (spec's pricing resolver note: the interval tree is a performance
// detail, not part of the contract). The default is in-process; a
// Redis-backed option is available for multi-instance deployments that
// need a shared cache.
package pricingcache

import (
	"context"
	"time"
)

// Cache stores serialized pricing groups keyed by a cache key built from
// (provider, model, region). Implementations need only byte-slice values;
// Resolver owns the serialization.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config holds cache configuration shared by the in-memory and Redis
// backends.
type Config struct {
	Address    string
	Password   string
	Database   int
	DefaultTTL time.Duration
	KeyPrefix  string
}

// DefaultConfig returns the engine's default pricing cache configuration.
func DefaultConfig() Config {
	return Config{
		Address:    "localhost:6379",
		DefaultTTL: 5 * time.Minute,
		KeyPrefix:  "costengine:pricing:",
	}
}
