// Package app wires configuration into the logger, cache store, upstream
// client and gateway shared by the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/bestsellers/cache"
	"github.com/briangreenhill/bestsellers/internal/bestsellers"
	"github.com/briangreenhill/bestsellers/internal/config"
	"github.com/briangreenhill/bestsellers/nyt"
)

const redisPingTimeout = 5 * time.Second

// NewLogger builds a zerolog logger honouring LOG_LEVEL and LOG_FORMAT.
// Unknown levels fall back to info.
func NewLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// NewStore opens the configured cache backend. The returned func releases
// it and is never nil on success.
func NewStore(ctx context.Context, cfg *config.Config) (cache.Store, func(), error) {
	if !cfg.UsesRedis() {
		m, err := cache.NewMemoryStore()
		if err != nil {
			return nil, nil, fmt.Errorf("memory cache: %w", err)
		}
		return m, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := cache.NewRedisStore(rdb, cache.WithPrefix(cfg.Cache.Prefix))

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis cache %s: %w", cfg.Redis.Addr, err)
	}
	return store, func() { _ = rdb.Close() }, nil
}

// NewGateway builds the NYT client and the caching gateway in front of it.
func NewGateway(cfg *config.Config, store cache.Store, logger zerolog.Logger) (*bestsellers.Gateway, error) {
	client, err := nyt.New(cfg.NYT.APIKey,
		nyt.WithBaseURL(cfg.NYT.BaseURL),
		nyt.WithTimeout(cfg.NYT.Timeout),
		nyt.WithRetry(cfg.NYT.Attempts, cfg.NYT.RetryDelay),
		nyt.WithRateLimit(cfg.NYT.RateLimit),
		nyt.WithLogger(logger.With().Str("component", "nyt").Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("nyt client: %w", err)
	}

	return bestsellers.New(client, store,
		bestsellers.WithPath(cfg.NYT.HistoryPath),
		bestsellers.WithTTL(cfg.TTL()),
		bestsellers.WithLogger(logger.With().Str("component", "gateway").Logger()),
	), nil
}
