package services

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/client"
	"github.com/dmitrijs2005/fleetzen/internal/client/migrations"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/outbox"
)

const (
	testClientID  = "6f1c2a0e-8a38-4f55-9a39-3f0a4c5e9b11"
	testVehicleID = "0b7d6c1e-2f4a-4e0b-9b8e-5d2c1a9f7e22"
	testTypeID    = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c33"
)

// -------- test fakes --------

type upload struct {
	interventionID string
	photoType      string
	files          []models.File
}

type fakeClient struct {
	mu sync.Mutex

	createErr error
	batchErr  error
	uploadErr error
	whoAmI    string
	whoAmIErr error

	// failLocal makes the batch report these local ids as failed.
	failLocal map[string]string
	// dropLocal leaves these local ids out of the batch response.
	dropLocal map[string]bool

	created []api.InterventionPayload
	batches [][]api.InterventionPayload
	uploads []upload
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) WhoAmI(context.Context) (string, error) {
	return f.whoAmI, f.whoAmIErr
}

func (f *fakeClient) CreateIntervention(_ context.Context, p *api.InterventionPayload) (*api.Intervention, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	f.created = append(f.created, *p)
	return &api.Intervention{ID: "srv-" + p.LocalID, InterventionPayload: *p}, true, nil
}

func (f *fakeClient) SyncBatch(_ context.Context, items []api.InterventionPayload) (*api.BatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	f.batches = append(f.batches, append([]api.InterventionPayload(nil), items...))

	resp := &api.BatchResponse{Success: true}
	for _, it := range items {
		switch {
		case f.dropLocal[it.LocalID]:
		case f.failLocal[it.LocalID] != "":
			resp.Data.Failed = append(resp.Data.Failed, api.BatchFailure{LocalID: it.LocalID, Error: f.failLocal[it.LocalID]})
		default:
			resp.Data.Success = append(resp.Data.Success, api.BatchSuccess{
				LocalID:      it.LocalID,
				Created:      true,
				Intervention: api.Intervention{ID: "srv-" + it.LocalID, InterventionPayload: it},
			})
		}
	}
	resp.Meta = api.BatchMeta{Total: len(items), Succeeded: len(resp.Data.Success), Failed: len(resp.Data.Failed)}
	return resp, nil
}

func (f *fakeClient) UploadPhotos(_ context.Context, interventionID, photoType string, files []models.File) ([]api.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, upload{interventionID: interventionID, photoType: photoType, files: files})
	out := make([]api.Photo, len(files))
	for i, file := range files {
		out[i] = api.Photo{InterventionID: interventionID, FileName: file.Name, PhotoType: photoType}
	}
	return out, nil
}

func (f *fakeClient) GetIntervention(context.Context, string) (*api.Intervention, error) {
	return nil, nil
}

var _ client.Client = (*fakeClient)(nil)

type fakeNetwork struct{ online atomic.Bool }

func (n *fakeNetwork) IsOnline() bool { return n.online.Load() }

func online(v bool) *fakeNetwork {
	n := &fakeNetwork{}
	n.online.Store(v)
	return n
}

type fakeRegistrar struct{ tags []string }

func (r *fakeRegistrar) Register(tag string) error {
	r.tags = append(r.tags, tag)
	return nil
}

// -------- helpers --------

func setupDraftDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:", migrations.Drafts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupOutbox(t *testing.T) (*outbox.SQLiteRepository, *sql.DB) {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), ":memory:", migrations.Outbox)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return outbox.NewSQLiteRepository(db), db
}

func validPayload() api.InterventionPayload {
	return api.InterventionPayload{
		ClientID:       testClientID,
		VehicleID:      testVehicleID,
		TypeID:         testTypeID,
		PrestationType: "wash",
		Title:          "Wash",
		Status:         api.StatusCompleted,
	}
}

func jpeg(name string) models.QueuedPhoto {
	return models.QueuedPhoto{Kind: api.PhotoBefore, FileName: name, MimeType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}
