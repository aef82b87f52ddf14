package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/migrations"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/common"
)

func setupRepo(t *testing.T) (*SQLiteRepository, *time.Time) {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:", migrations.Outbox)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := time.UnixMilli(1_700_000_000_000)
	r := NewSQLiteRepository(db)
	r.now = func() time.Time { return clock }
	return r, &clock
}

func payload(localID string) api.InterventionPayload {
	return api.InterventionPayload{LocalID: localID, ClientID: "c", VehicleID: "v", TypeID: "t", Title: "Wash"}
}

func TestQueue_StoresExactPayloadAsPending(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	photos := []models.QueuedPhoto{{Kind: "before", FileName: "a.jpg", MimeType: "image/jpeg", Data: []byte{1, 2, 3}}}
	seq, err := r.QueueIntervention(ctx, "tmp-1", payload("tmp-1"), photos)
	require.NoError(t, err)

	got, err := r.GetIntervention(ctx, seq)
	require.NoError(t, err)
	assert.Equal(t, "tmp-1", got.TempID)
	assert.Equal(t, payload("tmp-1"), got.Payload)
	assert.Equal(t, photos, got.Photos)
	assert.Equal(t, models.QueueStatusPending, got.Status)
	assert.Zero(t, got.RetryCount)
	assert.Empty(t, got.LastError)
}

func TestQueue_DuplicateTempIDConflicts(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	_, err := r.QueueIntervention(ctx, "tmp-1", payload("tmp-1"), nil)
	require.NoError(t, err)
	_, err = r.QueueIntervention(ctx, "tmp-1", payload("tmp-1"), nil)
	require.ErrorIs(t, err, common.ErrConflict)
}

func TestPending_FIFOAndCount(t *testing.T) {
	r, clock := setupRepo(t)
	ctx := context.Background()

	var seqs []int64
	for _, id := range []string{"a", "b", "c"} {
		seq, err := r.QueueIntervention(ctx, id, payload(id), nil)
		require.NoError(t, err)
		seqs = append(seqs, seq)
		*clock = clock.Add(time.Second)
	}
	require.NoError(t, r.UpdateInterventionStatus(ctx, seqs[1], models.QueueStatusSyncing, ""))

	pending, err := r.GetPendingInterventions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].TempID)
	assert.Equal(t, "c", pending[1].TempID)

	n, err := r.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpdateStatus_SyncingCountsAttempt(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	seq, err := r.QueueIntervention(ctx, "a", payload("a"), nil)
	require.NoError(t, err)

	require.NoError(t, r.UpdateInterventionStatus(ctx, seq, models.QueueStatusSyncing, ""))
	require.NoError(t, r.UpdateInterventionStatus(ctx, seq, models.QueueStatusFailed, "server unavailable"))
	require.NoError(t, r.UpdateInterventionStatus(ctx, seq, models.QueueStatusSyncing, ""))

	got, err := r.GetIntervention(ctx, seq)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, models.QueueStatusSyncing, got.Status)

	require.ErrorIs(t, r.UpdateInterventionStatus(ctx, 999, models.QueueStatusFailed, "x"), common.ErrNotFound)
}

func TestDelete(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	seq, err := r.QueueIntervention(ctx, "a", payload("a"), nil)
	require.NoError(t, err)
	require.NoError(t, r.DeleteIntervention(ctx, seq))

	_, err = r.GetIntervention(ctx, seq)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCleanupOldFailed(t *testing.T) {
	r, clock := setupRepo(t)
	ctx := context.Background()
	start := *clock

	oldFailed, err := r.QueueIntervention(ctx, "old-failed", payload("old-failed"), nil)
	require.NoError(t, err)
	require.NoError(t, r.UpdateInterventionStatus(ctx, oldFailed, models.QueueStatusFailed, "boom"))
	_, err = r.QueueIntervention(ctx, "old-pending", payload("old-pending"), nil)
	require.NoError(t, err)

	*clock = start.Add(6 * 24 * time.Hour)
	recentFailed, err := r.QueueIntervention(ctx, "recent-failed", payload("recent-failed"), nil)
	require.NoError(t, err)
	require.NoError(t, r.UpdateInterventionStatus(ctx, recentFailed, models.QueueStatusFailed, "boom"))

	n, err := r.CleanupOldFailed(ctx, start.Add(7*24*time.Hour+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := r.ListInterventions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "old-pending", all[0].TempID)
	assert.Equal(t, "recent-failed", all[1].TempID)
}

func TestRequeueFailed(t *testing.T) {
	r, _ := setupRepo(t)
	ctx := context.Background()

	var seqs []int64
	for _, id := range []string{"a", "b", "c"} {
		seq, err := r.QueueIntervention(ctx, id, payload(id), nil)
		require.NoError(t, err)
		require.NoError(t, r.UpdateInterventionStatus(ctx, seq, models.QueueStatusSyncing, ""))
		require.NoError(t, r.UpdateInterventionStatus(ctx, seq, models.QueueStatusFailed, "x"))
		seqs = append(seqs, seq)
	}

	n, err := r.RequeueFailed(ctx, []int64{seqs[0]})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.GetIntervention(ctx, seqs[0])
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	n, err = r.RequeueFailed(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := r.GetPendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestFailStale(t *testing.T) {
	r, clock := setupRepo(t)
	ctx := context.Background()
	start := *clock

	stuck, err := r.QueueIntervention(ctx, "stuck", payload("stuck"), nil)
	require.NoError(t, err)
	require.NoError(t, r.UpdateInterventionStatus(ctx, stuck, models.QueueStatusSyncing, ""))

	*clock = start.Add(10 * time.Minute)
	fresh, err := r.QueueIntervention(ctx, "fresh", payload("fresh"), nil)
	require.NoError(t, err)
	require.NoError(t, r.UpdateInterventionStatus(ctx, fresh, models.QueueStatusSyncing, ""))

	n, err := r.FailStale(ctx, start.Add(5*time.Minute), "sync interrupted")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := r.GetIntervention(ctx, stuck)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, got.Status)
	assert.Equal(t, "sync interrupted", got.LastError)

	got, err = r.GetIntervention(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusSyncing, got.Status)
}

var _ Repository = (*SQLiteRepository)(nil)

