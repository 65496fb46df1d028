package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueryTimeout bounds each Redis round trip.
const DefaultQueryTimeout = 2 * time.Second

// RedisStore is a Store shared between gateway instances. The caller owns
// the client lifecycle.
type RedisStore struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix namespaces every key as "<prefix>:<key>".
func WithPrefix(p string) RedisOption {
	return func(r *RedisStore) { r.prefix = p }
}

// WithQueryTimeout overrides DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) RedisOption {
	return func(r *RedisStore) { r.queryTimeout = d }
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	r := &RedisStore{client: client, queryTimeout: DefaultQueryTimeout}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *RedisStore) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

// Get implements Reader.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	b, err := r.client.Get(qctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

// Set implements Writer.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis cache: ttl must be positive, got %s", ttl)
	}
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	if err := r.client.Set(qctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity; used at startup.
func (r *RedisStore) Ping(ctx context.Context) error {
	qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()
	return r.client.Ping(qctx).Err()
}
