package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// Memory is an in-process cache.
type Memory struct {
	items *gocache.Cache
	ttl   time.Duration
}

// NewMemory creates a memory cache. cleanupInterval <= 0 disables the
// janitor; expired items are still never returned.
func NewMemory(ttl, cleanupInterval time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval < 0 {
		cleanupInterval = 0
	}
	return &Memory{
		items: gocache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.items.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Len returns the number of stored items, including expired ones not yet
// purged.
func (m *Memory) Len() int {
	return m.items.ItemCount()
}

// Close implements Cache.
func (m *Memory) Close() error {
	m.items.Flush()
	return nil
}
