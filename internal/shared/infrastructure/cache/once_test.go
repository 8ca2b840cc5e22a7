package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOnceMarker_FirstWins(t *testing.T) {
	marker := NewMemoryOnceMarker()
	ctx := context.Background()

	won, err := marker.MarkOnce(ctx, "expiry-reminder:42", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = marker.MarkOnce(ctx, "expiry-reminder:42", time.Hour)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestMemoryOnceMarker_DistinctKeys(t *testing.T) {
	marker := NewMemoryOnceMarker()
	ctx := context.Background()

	won, err := marker.MarkOnce(ctx, "expiry-reminder:1", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = marker.MarkOnce(ctx, "expiry-reminder:2", time.Hour)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMemoryOnceMarker_ExpiredMarkerCanBeRetaken(t *testing.T) {
	marker := NewMemoryOnceMarker()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	marker.now = func() time.Time { return current }
	ctx := context.Background()

	won, err := marker.MarkOnce(ctx, "expiry-reminder:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	current = current.Add(30 * time.Second)
	won, err = marker.MarkOnce(ctx, "expiry-reminder:7", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	current = current.Add(time.Minute)
	won, err = marker.MarkOnce(ctx, "expiry-reminder:7", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}
