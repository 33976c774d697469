package pricingcache

import (
	"context"
	"regexp"
	"sync"
	"time"
)

// MemoryCache is the default in-process pricing cache: a single engine
// instance resolving against its own pricing table doesn't need a shared
// store, and this avoids a Redis dependency for the common case.
type MemoryCache struct {
	mu        sync.RWMutex
	data      map[string]*entry
	keyPrefix string
}

type entry struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an in-memory pricing cache scoped under prefix.
func NewMemoryCache(prefix string) *MemoryCache {
	c := &MemoryCache{
		data:      make(map[string]*entry),
		keyPrefix: prefix,
	}
	go c.cleanupExpired()
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[c.prefixedKey(key)]
	if !ok || time.Now().After(e.expiration) {
		return nil, nil
	}
	return e.value, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[c.prefixedKey(key)] = &entry{value: value, expiration: time.Now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, c.prefixedKey(key))
	return nil
}

func (c *MemoryCache) DeletePattern(ctx context.Context, pattern string) error {
	regexPattern := "^" + regexp.QuoteMeta(c.keyPrefix+pattern)
	regexPattern = regexp.MustCompile(`\\\*`).ReplaceAllString(regexPattern, ".*")
	regex, err := regexp.Compile(regexPattern)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if regex.MatchString(key) {
			delete(c.data, key)
		}
	}
	return nil
}

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*entry)
	return nil
}

func (c *MemoryCache) prefixedKey(key string) string {
	return c.keyPrefix + key
}

func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, e := range c.data {
			if now.After(e.expiration) {
				delete(c.data, key)
			}
		}
		c.mu.Unlock()
	}
}

var _ Cache = (*MemoryCache)(nil)
