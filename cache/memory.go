package cache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	expirable "github.com/go-pkgz/expirable-cache"
)

// MemoryStore is an in-process Store. Entries live until their TTL elapses;
// there is no size bound and no LRU eviction.
type MemoryStore struct {
	c expirable.Cache
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() (*MemoryStore, error) {
	c, err := expirable.NewCache()
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &MemoryStore{c: c}, nil
}

// Get implements Reader. It returns a copy of the stored bytes.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, fmt.Errorf("memory cache: unexpected value type %T", v)
	}
	return bytes.Clone(b), true, nil
}

// Set implements Writer. The value is copied, so neither the caller nor
// readers share the stored bytes. Expired entries are swept on each write
// so the map does not grow with dead keys.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("memory cache: ttl must be positive, got %s", ttl)
	}
	m.c.DeleteExpired()
	m.c.Set(key, bytes.Clone(value), ttl)
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (m *MemoryStore) Len() int {
	return m.c.Len()
}
