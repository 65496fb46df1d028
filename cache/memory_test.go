package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore()
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"status":"OK"}`), time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"status":"OK"}`, string(v))
}

func TestMemoryStoreEntriesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore()
	require.NoError(t, err)

	in := []byte(`{"status":"OK"}`)
	require.NoError(t, s.Set(ctx, "k", in, time.Minute))
	in[2] = 'X'

	first, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	first[2] = 'Y'

	second, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"status":"OK"}`, string(second))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore()
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// The next write sweeps the expired entry.
	require.NoError(t, s.Set(ctx, "other", []byte("v"), time.Minute))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreRejectsNonPositiveTTL(t *testing.T) {
	s, err := NewMemoryStore()
	require.NoError(t, err)
	assert.Error(t, s.Set(context.Background(), "k", []byte("v"), 0))
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Set(ctx, "shared", []byte("payload"), time.Minute)
				if v, ok, _ := s.Get(ctx, "shared"); ok {
					assert.Equal(t, "payload", string(v))
				}
			}
		}()
	}
	wg.Wait()
}
