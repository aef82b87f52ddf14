package blobs

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/migrations"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:", migrations.Drafts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveAndGet_GroupsByFieldInOrder(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.SavePhotoBlobs(ctx, "d1", "photosBefore", []models.File{
		{Name: "1.jpg", MimeType: "image/jpeg", Data: []byte{0xFF, 0xD8}},
		{Name: "2.jpg", MimeType: "image/jpeg", Data: []byte{0x01}},
	}))
	require.NoError(t, r.SavePhotoBlobs(ctx, "d1", "photosAfter", []models.File{
		{Name: "3.png", MimeType: "image/png", Data: []byte{0x89}},
	}))
	require.NoError(t, r.SavePhotoBlobs(ctx, "d1", "photosBefore", []models.File{
		{Name: "4.jpg", MimeType: "image/jpeg", Data: []byte{0x02}},
	}))
	require.NoError(t, r.SavePhotoBlobs(ctx, "other", "photosBefore", []models.File{{Name: "x.jpg"}}))

	got, err := r.GetPhotoBlobs(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	before := got["photosBefore"]
	require.Len(t, before, 3)
	assert.Equal(t, []string{"1.jpg", "2.jpg", "4.jpg"}, []string{before[0].Name, before[1].Name, before[2].Name})
	assert.Equal(t, []byte{0xFF, 0xD8}, before[0].Data)
	assert.Equal(t, "image/png", got["photosAfter"][0].MimeType)
}

func TestGet_UnknownDraftReturnsEmptyMap(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.GetPhotoBlobs(context.Background(), "absent")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDelete_RemovesOnlyThatDraft(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.SavePhotoBlobs(ctx, "d1", "f", []models.File{{Name: "a"}}))
	require.NoError(t, r.SavePhotoBlobs(ctx, "d2", "f", []models.File{{Name: "b"}}))

	require.NoError(t, r.DeletePhotoBlobs(ctx, "d1"))
	require.NoError(t, r.DeletePhotoBlobs(ctx, "d1"))

	got, err := r.GetPhotoBlobs(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.GetPhotoBlobs(ctx, "d2")
	require.NoError(t, err)
	assert.Len(t, got["f"], 1)
}
