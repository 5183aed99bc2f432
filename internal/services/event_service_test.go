package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manru/manru-be/internal/models"
)

func TestEventService_CreateAndPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := "user-1"
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	f.events.now = func() time.Time { return base.Add(-40 * 24 * time.Hour) }
	require.NoError(t, f.events.CreateEvent(ctx, models.EventUserLogin, "info", "old", &userID))

	f.events.now = func() time.Time { return base }
	require.NoError(t, f.events.CreateEvent(ctx, models.EventUserLogin, "info", "new", &userID))
	require.NoError(t, f.events.CreateEvent(ctx, models.EventUserLoginFail, "warn", "anonymous", nil))

	events, err := f.events.GetRecentEvents(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "new", events[0].Message)

	removed, err := f.events.PruneEvents(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	events, err = f.events.GetRecentEvents(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].Message)
}

func TestEventService_PruneRejectsNonPositiveRetention(t *testing.T) {
	f := newFixture(t)

	_, err := f.events.PruneEvents(context.Background(), 0)
	assert.Error(t, err)
}
