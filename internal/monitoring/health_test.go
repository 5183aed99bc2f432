package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/database"
)

func TestStatUpdater_Snapshot(t *testing.T) {
	db, err := database.New(context.Background(), config.DriverSQLite, ":memory:")
	require.NoError(t, err)

	su := NewStatUpdater(db, time.Hour)
	h := su.Snapshot()
	assert.Equal(t, StatusOK, h.Status)
	assert.Equal(t, StatusOK, h.Database)
	assert.GreaterOrEqual(t, h.Uptime, 0.0)
	assert.NotZero(t, h.Memory.HeapAlloc)
	assert.Positive(t, h.Goroutines)

	db.Close()
	su.update(context.Background())
	h = su.Snapshot()
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, "unreachable", h.Database)
}

func TestStatUpdater_NilDatabase(t *testing.T) {
	su := NewStatUpdater(nil, 0)
	assert.Equal(t, 15*time.Second, su.interval)
	assert.Equal(t, StatusOK, su.Snapshot().Status)
}
