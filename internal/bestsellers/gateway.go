// Package bestsellers answers best-sellers history queries from a TTL cache,
// falling back to the NYT Books API on a miss.
package bestsellers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/briangreenhill/bestsellers/cache"
	"github.com/briangreenhill/bestsellers/nyt"
)

// DefaultTTL is how long a successful upstream response is served from cache.
const DefaultTTL = time.Hour

// Fetcher retrieves a document from the upstream API. *nyt.Client
// satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, path string, params map[string]string) (json.RawMessage, error)
}

// Gateway validates queries and serves them cache-aside. Concurrent misses
// for the same key share one upstream fetch.
type Gateway struct {
	fetcher   Fetcher
	store     cache.Store
	validator *Validator

	path      string
	namespace string
	ttl       time.Duration
	log       zerolog.Logger

	group singleflight.Group // one in-flight fetch per cache key
	stats Stats
}

type Option func(*Gateway)

// WithPath overrides the upstream path (nyt.HistoryPath by default).
func WithPath(p string) Option {
	return func(g *Gateway) { g.path = p }
}

// WithTTL sets how long successful responses are cached.
func WithTTL(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.ttl = d
		}
	}
}

// WithNamespace overrides cache.Namespace as the key prefix.
func WithNamespace(ns string) Option {
	return func(g *Gateway) { g.namespace = ns }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

func New(fetcher Fetcher, store cache.Store, opts ...Option) *Gateway {
	g := &Gateway{
		fetcher:   fetcher,
		store:     store,
		validator: NewValidator(),
		path:      nyt.HistoryPath,
		namespace: cache.Namespace,
		ttl:       DefaultTTL,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// History returns the upstream document for q.
//
// Invalid queries fail with *ValidationError before the cache or network is
// touched. Upstream failures are returned as the *nyt.Error produced by the
// fetcher and are never cached. If ctx ends while waiting, History returns
// ctx.Err() but the shared fetch keeps running for other callers and for
// the cache.
func (g *Gateway) History(ctx context.Context, q Query) (json.RawMessage, error) {
	if err := g.validator.Validate(q); err != nil {
		return nil, err
	}

	params := q.Normalize()
	key := cache.KeyFor(g.namespace, params)

	if body, ok := g.lookup(ctx, key); ok {
		g.stats.Hits.Add(1)
		g.log.Debug().Str("key", key).Msg("cache hit")
		return body, nil
	}
	g.stats.Misses.Add(1)
	g.log.Debug().Str("key", key).Msg("cache miss")

	ch := g.group.DoChan(key, func() (any, error) {
		fctx := context.WithoutCancel(ctx)

		// A flight for this key may have completed between our lookup and
		// joining the group.
		if body, ok := g.lookup(fctx, key); ok {
			return body, nil
		}

		g.stats.Fetches.Add(1)
		body, err := g.fetcher.Fetch(fctx, g.path, params)
		if err != nil {
			g.stats.Failures.Add(1)
			return nil, err
		}

		if err := g.store.Set(fctx, key, body, g.ttl); err != nil {
			g.log.Warn().Err(err).Str("key", key).Msg("failed to store response in cache")
		}
		return body, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			g.stats.Shared.Add(1)
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup treats backend failures as misses so a broken cache degrades to
// direct upstream calls.
func (g *Gateway) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	b, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return json.RawMessage(b), true
}

// Stats returns the gateway counters.
func (g *Gateway) Stats() *Stats {
	return &g.stats
}
