package bestsellers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/bestsellers/nyt"
)

const fixture = `{"status":"OK","copyright":"Copyright (c) 2023 The New York Times Company. All Rights Reserved.","num_results":1,"results":[{"title":"#GIRLBOSS","author":"Sophia Amoruso"}]}`

// fakeFetcher counts calls and returns whatever respond produces.
type fakeFetcher struct {
	calls   atomic.Int32
	mu      sync.Mutex
	params  []map[string]string
	respond func(params map[string]string) (json.RawMessage, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, params map[string]string) (json.RawMessage, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.params = append(f.params, params)
	f.mu.Unlock()
	if f.respond == nil {
		return json.RawMessage(fixture), nil
	}
	return f.respond(params)
}

type fakeEntry struct {
	value     []byte
	expiresAt time.Time
}

// fakeStore is a mutex-guarded TTL map.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	getErr  error
	setErr  error
	sets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: map[string]fakeEntry{}}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.entries[key] = fakeEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestHistoryCachesIdenticalQueries(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{}
	store := newFakeStore()
	g := New(f, store)

	q := Query{Author: "Sophia Amoruso", ISBN: []string{"0198534531"}, Offset: intPtr(20)}
	for i := 0; i < 2; i++ {
		body, err := g.History(ctx, q)
		require.NoError(t, err)
		assert.JSONEq(t, fixture, string(body))
	}

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 1, store.len())
	assert.Equal(t, map[string]string{"author": "Sophia Amoruso", "isbn": "0198534531", "offset": "20"}, f.params[0])

	snap := g.Stats().Snapshot()
	assert.Equal(t, int64(1), snap["hits"])
	assert.Equal(t, int64(1), snap["misses"])
	assert.Equal(t, int64(1), snap["fetches"])
	assert.InDelta(t, 0.5, g.Stats().HitRate(), 0.001)
}

func TestHistoryDistinctQueriesFetchIndependently(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{respond: func(p map[string]string) (json.RawMessage, error) {
		return json.RawMessage(`{"author":"` + p["author"] + `"}`), nil
	}}
	store := newFakeStore()
	g := New(f, store)

	a, err := g.History(ctx, Query{Author: "Orwell"})
	require.NoError(t, err)
	b, err := g.History(ctx, Query{Author: "Huxley"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, 2, store.len())
	assert.JSONEq(t, `{"author":"Orwell"}`, string(a))
	assert.JSONEq(t, `{"author":"Huxley"}`, string(b))

	// ISBN order is significant.
	_, err = g.History(ctx, Query{ISBN: []string{"0198534531", "0439023483"}})
	require.NoError(t, err)
	_, err = g.History(ctx, Query{ISBN: []string{"0439023483", "0198534531"}})
	require.NoError(t, err)
	assert.Equal(t, int32(4), f.calls.Load())
}

func TestHistoryValidationShortCircuits(t *testing.T) {
	f := &fakeFetcher{}
	store := newFakeStore()
	store.getErr = errors.New("must not be called")
	g := New(f, store)

	_, err := g.History(context.Background(), Query{Offset: intPtr(15)})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	_, err = g.History(context.Background(), Query{ISBN: []string{"1234567890"}})
	assert.True(t, IsValidationError(err))

	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, 0, store.sets)
	assert.Equal(t, int64(0), g.Stats().Misses.Load())
}

func TestHistoryFailuresAreNotCached(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind nyt.Kind
	}{
		{"connectivity", nyt.NewConnectivityError(context.DeadlineExceeded), nyt.KindConnectivity},
		{"rejected", nyt.NewRejectedError(http.StatusUnauthorized, []byte(`{"fault":"Invalid ApiKey"}`)), nyt.KindRejected},
		{"unexpected", nyt.NewUnexpectedError(errors.New("bad body")), nyt.KindUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{respond: func(map[string]string) (json.RawMessage, error) {
				return nil, tt.err
			}}
			store := newFakeStore()
			g := New(f, store)
			q := Query{Title: "1984"}

			_, err := g.History(context.Background(), q)
			require.Error(t, err)
			assert.Same(t, tt.err, err, "error must pass through unchanged")
			assert.Equal(t, tt.kind, nyt.KindOf(err))
			assert.Equal(t, 0, store.len())

			// Next identical call goes upstream again.
			_, err = g.History(context.Background(), q)
			require.Error(t, err)
			assert.Equal(t, int32(2), f.calls.Load())
			assert.Equal(t, int64(2), g.Stats().Failures.Load())
		})
	}

	t.Run("rejected carries status and body", func(t *testing.T) {
		f := &fakeFetcher{respond: func(map[string]string) (json.RawMessage, error) {
			return nil, nyt.NewRejectedError(401, []byte("denied"))
		}}
		g := New(f, newFakeStore())
		_, err := g.History(context.Background(), Query{})
		var e *nyt.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, 401, e.StatusCode)
		assert.Equal(t, "denied", string(e.Body))
	})
}

func TestHistoryCoalescesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	f := &fakeFetcher{respond: func(map[string]string) (json.RawMessage, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return json.RawMessage(fixture), nil
	}}
	g := New(f, newFakeStore())

	const callers = 16
	var wg sync.WaitGroup
	results := make([]json.RawMessage, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.History(context.Background(), Query{Author: "Sophia"})
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond) // let the others join the flight
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.JSONEq(t, fixture, string(results[i]))
	}
}

func TestHistoryRefetchesAfterTTL(t *testing.T) {
	f := &fakeFetcher{}
	g := New(f, newFakeStore(), WithTTL(20*time.Millisecond))

	_, err := g.History(context.Background(), Query{Author: "A"})
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = g.History(context.Background(), Query{Author: "A"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.calls.Load())
}

func TestHistoryToleratesCacheFailures(t *testing.T) {
	f := &fakeFetcher{}
	store := newFakeStore()
	store.getErr = errors.New("redis down")
	store.setErr = errors.New("redis down")
	g := New(f, store)

	body, err := g.History(context.Background(), Query{Author: "A"})
	require.NoError(t, err)
	assert.JSONEq(t, fixture, string(body))

	_, err = g.History(context.Background(), Query{Author: "A"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestHistoryAbandonedCallerDoesNotCancelFetch(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{respond: func(map[string]string) (json.RawMessage, error) {
		<-release
		return json.RawMessage(fixture), nil
	}}
	store := newFakeStore()
	g := New(f, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.History(ctx, Query{Author: "A"})
		done <- err
	}()

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return store.len() == 1 }, time.Second, time.Millisecond)

	body, err := g.History(context.Background(), Query{Author: "A"})
	require.NoError(t, err)
	assert.JSONEq(t, fixture, string(body))
	assert.Equal(t, int32(1), f.calls.Load())
}
