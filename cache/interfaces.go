// Package cache provides TTL key/value stores for upstream responses and the
// key derivation used to address them.
package cache

import (
	"context"
	"time"
)

// Reader reads entries that have not yet expired.
type Reader interface {
	// Get returns the stored value and true, or false when the key is absent
	// or its TTL has elapsed. A non-nil error means the backend failed.
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// Writer stores entries with a time-to-live.
type Writer interface {
	// Set stores value under key for ttl, replacing any previous entry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store is a TTL key/value cache. Implementations must be safe for
// concurrent use.
type Store interface {
	Reader
	Writer
}
