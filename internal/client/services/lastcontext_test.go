package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/metadata"
)

func TestLastContextCache(t *testing.T) {
	c := NewLastContextCache(metadata.NewSQLiteRepository(setupDraftDB(t)))
	ctx := context.Background()

	got, err := c.Recall(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	saved := time.Now().Truncate(time.Second)
	c.now = func() time.Time { return saved }
	require.NoError(t, c.Remember(ctx, LastContext{ClientID: testClientID, VehicleID: testVehicleID}))

	got, err = c.Recall(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testClientID, got.ClientID)
	assert.Equal(t, testVehicleID, got.VehicleID)
	assert.True(t, saved.Equal(got.SavedAt))

	require.NoError(t, c.Forget(ctx))
	got, err = c.Recall(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLastContextCache_Expires(t *testing.T) {
	c := NewLastContextCache(metadata.NewSQLiteRepository(setupDraftDB(t)))
	ctx := context.Background()

	c.now = func() time.Time { return time.Now().Add(-25 * time.Hour) }
	require.NoError(t, c.Remember(ctx, LastContext{ClientID: testClientID}))

	got, err := c.Recall(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
