// Package services contains server-side business logic. InterventionService
// reconciles client-originated interventions into the interventions table;
// PhotoService stores uploaded photo binaries.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
	"github.com/dmitrijs2005/fleetzen/internal/server/locks"
	"github.com/dmitrijs2005/fleetzen/internal/server/models"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fleetzen/internal/server/storage"
)

// InterventionService reconciles payloads keyed by their client localId.
// Every item runs in its own transaction so one bad item never rolls back
// its siblings.
type InterventionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	locker      locks.Locker
	store       storage.ObjectStore
	logger      logging.Logger
	now         func() time.Time
}

func NewInterventionService(db *sql.DB, m repomanager.RepositoryManager, locker locks.Locker,
	store storage.ObjectStore, logger logging.Logger) *InterventionService {
	if locker == nil {
		locker = locks.Nop{}
	}
	return &InterventionService{
		db:          db,
		repomanager: m,
		locker:      locker,
		store:       store,
		logger:      logger.With("module", "reconcile"),
		now:         time.Now,
	}
}

// Reconcile validates p and creates or updates the record with the same
// localId. created reports whether a new record was inserted.
func (s *InterventionService) Reconcile(ctx context.Context, agentID string, p *api.InterventionPayload) (*api.Intervention, bool, error) {
	if err := api.ValidatePayload(p); err != nil {
		return nil, false, fmt.Errorf("%w: %s", common.ErrValidation, err.Error())
	}

	release := s.locker.Lock(ctx, p.LocalID)
	defer release()

	now := s.now().UTC()

	var (
		rec     *models.Intervention
		photos  []*models.Photo
		created bool
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Interventions(tx)

		existing, err := repo.GetByLocalID(ctx, p.LocalID)
		switch {
		case err == nil:
			if existing.AgentID != agentID {
				return fmt.Errorf("%w: localId %q belongs to another agent", common.ErrConflict, p.LocalID)
			}
			if err := existing.ApplyPayload(p); err != nil {
				return err
			}
			existing.Synced = true
			existing.SyncedAt = &now
			existing.UpdatedAt = now
			if err := repo.Update(ctx, existing); err != nil {
				return err
			}
			rec = existing

		case errors.Is(err, common.ErrNotFound):
			number, err := repo.NextNumber(ctx, now)
			if err != nil {
				return err
			}
			n := &models.Intervention{
				ID:       uuid.NewString(),
				Number:   number,
				LocalID:  p.LocalID,
				AgentID:  agentID,
				Synced:   true,
				SyncedAt: &now,
			}
			if err := n.ApplyPayload(p); err != nil {
				return err
			}
			rec, created, err = repo.Upsert(ctx, n)
			if err != nil {
				return err
			}
			if rec.AgentID != agentID {
				return fmt.Errorf("%w: localId %q belongs to another agent", common.ErrConflict, p.LocalID)
			}

		default:
			return err
		}

		photos, err = s.mergePhotos(ctx, tx, rec.ID, p.Photos)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	out := rec.ToAPI(s.photosToAPI(ctx, photos))
	return &out, created, nil
}

// mergePhotos inserts payload photos not yet stored for the intervention,
// assigning positions after the existing ones, and returns the full list.
func (s *InterventionService) mergePhotos(ctx context.Context, tx dbx.DBTX, interventionID string, in []api.PhotoPayload) ([]*models.Photo, error) {
	repo := s.repomanager.Photos(tx)

	if len(in) > 0 {
		pos, err := repo.NextPosition(ctx, interventionID)
		if err != nil {
			return nil, err
		}
		for _, pp := range in {
			ph := models.PhotoFromPayload(interventionID, pp)
			ph.ID = uuid.NewString()
			ph.Position = pos
			inserted, err := repo.Insert(ctx, ph)
			if err != nil {
				return nil, err
			}
			if inserted {
				pos++
			}
		}
	}

	return repo.ListByIntervention(ctx, interventionID)
}

// ReconcileBatch processes items in order and never aborts on a failed item.
func (s *InterventionService) ReconcileBatch(ctx context.Context, agentID string, items []api.InterventionPayload) api.BatchResponse {
	resp := api.BatchResponse{
		Success: true,
		Data: api.BatchData{
			Success: []api.BatchSuccess{},
			Failed:  []api.BatchFailure{},
		},
	}

	for i := range items {
		item := &items[i]
		out, created, err := s.Reconcile(ctx, agentID, item)
		if err != nil {
			s.logger.Warn(ctx, "batch item failed", "local_id", item.LocalID, "error", err)
			resp.Data.Failed = append(resp.Data.Failed, api.BatchFailure{
				LocalID: item.LocalID,
				Error:   itemError(err),
			})
			continue
		}
		resp.Data.Success = append(resp.Data.Success, api.BatchSuccess{
			LocalID:      item.LocalID,
			Created:      created,
			Intervention: *out,
		})
	}

	resp.Meta = api.BatchMeta{
		Total:     len(items),
		Succeeded: len(resp.Data.Success),
		Failed:    len(resp.Data.Failed),
	}
	s.logger.Info(ctx, "batch reconciled", "agent_id", agentID,
		"total", resp.Meta.Total, "succeeded", resp.Meta.Succeeded, "failed", resp.Meta.Failed)
	return resp
}

// Get returns the reconciled record for localID. Records owned by another
// agent are reported as not found.
func (s *InterventionService) Get(ctx context.Context, agentID, localID string) (*api.Intervention, error) {
	rec, err := s.repomanager.Interventions(s.db).GetByLocalID(ctx, localID)
	if err != nil {
		return nil, err
	}
	if rec.AgentID != agentID {
		return nil, common.ErrNotFound
	}
	photos, err := s.repomanager.Photos(s.db).ListByIntervention(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	out := rec.ToAPI(s.photosToAPI(ctx, photos))
	return &out, nil
}

func (s *InterventionService) photosToAPI(ctx context.Context, photos []*models.Photo) []api.Photo {
	out := make([]api.Photo, 0, len(photos))
	for _, ph := range photos {
		out = append(out, ph.ToAPI(presign(ctx, s.store, s.logger, ph)))
	}
	return out
}

func presign(ctx context.Context, store storage.ObjectStore, logger logging.Logger, ph *models.Photo) string {
	if store == nil || ph.StorageKey == "" {
		return ""
	}
	url, err := store.PresignGet(ctx, ph.StorageKey)
	if err != nil {
		logger.Warn(ctx, "presign failed", "photo_id", ph.ID, "error", err)
		return ""
	}
	return url
}

// itemError is the message reported to the client for a failed batch item.
// Storage failures are not echoed verbatim.
func itemError(err error) string {
	if errors.Is(err, common.ErrValidation) || errors.Is(err, common.ErrConflict) {
		return err.Error()
	}
	return "failed to reconcile intervention"
}
