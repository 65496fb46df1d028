package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRequiresAPIKey(t *testing.T) {
	t.Setenv("NYT_API_KEY", "")
	t.Setenv("CACHE_DRIVER", "memory")

	err := run(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NYT_API_KEY")
}

func TestRunStopsWhenContextEnds(t *testing.T) {
	t.Setenv("NYT_API_KEY", "k")
	t.Setenv("CACHE_DRIVER", "memory")
	t.Setenv("PORT", "0")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var logs bytes.Buffer
	require.NoError(t, run(ctx, &logs))
	assert.Contains(t, logs.String(), "starting api")
	assert.Contains(t, logs.String(), "stopped")
}
