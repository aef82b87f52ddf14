package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
	"github.com/dmitrijs2005/fleetzen/internal/server/models"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/interventions"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/photos"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/repomanager"
)

// -------- test fakes --------

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

type fakeInterventions struct {
	interventions.Repository
	byLocal map[string]*models.Intervention
	seq     int
	updated int
	getErr  error
}

func newFakeInterventions() *fakeInterventions {
	return &fakeInterventions{byLocal: map[string]*models.Intervention{}}
}

func (f *fakeInterventions) GetByLocalID(ctx context.Context, localID string) (*models.Intervention, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.byLocal[localID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeInterventions) GetByID(ctx context.Context, id string) (*models.Intervention, error) {
	for _, rec := range f.byLocal {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeInterventions) Upsert(ctx context.Context, rec *models.Intervention) (*models.Intervention, bool, error) {
	cp := *rec
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.byLocal[rec.LocalID] = &cp
	return &cp, true, nil
}

func (f *fakeInterventions) Update(ctx context.Context, rec *models.Intervention) error {
	if _, ok := f.byLocal[rec.LocalID]; !ok {
		return common.ErrNotFound
	}
	f.updated++
	cp := *rec
	f.byLocal[rec.LocalID] = &cp
	return nil
}

func (f *fakeInterventions) NextNumber(ctx context.Context, now time.Time) (string, error) {
	f.seq++
	return models.FormatNumber(now, int64(f.seq)), nil
}

type fakePhotos struct {
	photos.Repository
	rows []*models.Photo
}

func (f *fakePhotos) ListByIntervention(ctx context.Context, interventionID string) ([]*models.Photo, error) {
	var out []*models.Photo
	for _, p := range f.rows {
		if p.InterventionID == interventionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePhotos) Insert(ctx context.Context, p *models.Photo) (bool, error) {
	for _, r := range f.rows {
		if r.InterventionID == p.InterventionID && r.PhotoKey == p.PhotoKey {
			return false, nil
		}
	}
	cp := *p
	f.rows = append(f.rows, &cp)
	return true, nil
}

func (f *fakePhotos) NextPosition(ctx context.Context, interventionID string) (int, error) {
	next := 0
	for _, r := range f.rows {
		if r.InterventionID == interventionID && r.Position >= next {
			next = r.Position + 1
		}
	}
	return next, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	i *fakeInterventions
	p *fakePhotos
}

func (m *fakeRepoManager) Interventions(db dbx.DBTX) interventions.Repository { return m.i }
func (m *fakeRepoManager) Photos(db dbx.DBTX) photos.Repository               { return m.p }

type fakeStore struct {
	mu     sync.Mutex
	puts   map[string][]byte
	putErr error
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if s.puts == nil {
		s.puts = map[string][]byte{}
	}
	s.puts[key] = data
	return nil
}

func (s *fakeStore) PresignGet(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	return "https://signed/" + key, nil
}

type fakeLocker struct {
	keys     []string
	released int
}

func (l *fakeLocker) Lock(ctx context.Context, key string) func() {
	l.keys = append(l.keys, key)
	return func() { l.released++ }
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func validPayload(localID string) api.InterventionPayload {
	return api.InterventionPayload{
		LocalID:        localID,
		ClientID:       "8d3e4c1a-3b8a-4c55-9f0e-0d6a1c2b3e4f",
		VehicleID:      "0f1e2d3c-4b5a-4968-8776-655443322110",
		TypeID:         "a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d",
		PrestationType: "wash",
		Title:          "Exterior wash",
		Status:         api.StatusCompleted,
	}
}
