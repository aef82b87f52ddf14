// Package services contains the agent's application services: draft
// persistence with auto-save, submission dispatch, queue draining, the last
// context cache and access token handling.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/blobs"
	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/drafts"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
)

// DraftService keeps drafts and their photo blobs consistent in the draft
// database.
type DraftService struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time

	// OnWarning receives auto-save failures. It must not block.
	OnWarning func(err error)
}

func NewDraftService(db *sql.DB, logger logging.Logger) *DraftService {
	return &DraftService{db: db, logger: logger.With("module", "drafts"), now: time.Now}
}

// Save persists d in one transaction. Fields holding []models.File are
// appended to the blob store and replaced in d by descriptors of every blob
// saved for that field. On error d is left untouched.
func (s *DraftService) Save(ctx context.Context, d *models.Draft) error {
	if d.ID == "" {
		return fmt.Errorf("%w: draft id is required", common.ErrValidation)
	}
	if d.CurrentStep < 1 {
		d.CurrentStep = 1
	}

	formData := make(models.FormData, len(d.FormData))
	for k, v := range d.FormData {
		formData[k] = v
	}
	updatedAt := s.now()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		blobRepo := blobs.NewSQLiteRepository(tx)

		var stored map[string][]models.File
		for field, v := range formData {
			files, ok := v.([]models.File)
			if !ok {
				continue
			}
			if err := blobRepo.SavePhotoBlobs(ctx, d.ID, field, files); err != nil {
				return err
			}
			if stored == nil {
				var err error
				if stored, err = blobRepo.GetPhotoBlobs(ctx, d.ID); err != nil {
					return err
				}
			} else {
				stored[field] = append(stored[field], files...)
			}
			formData[field] = describe(stored[field])
		}

		return drafts.NewSQLiteRepository(tx).SaveDraft(ctx, &models.Draft{
			ID:             d.ID,
			TypePrestation: d.TypePrestation,
			FormData:       formData,
			CurrentStep:    d.CurrentStep,
			UpdatedAt:      updatedAt,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorageUnavailable, err)
	}

	d.FormData = formData
	d.UpdatedAt = updatedAt
	return nil
}

// AutoSave is Save for the form flow: failures are logged and passed to
// OnWarning, never returned. It reports whether the draft was stored.
func (s *DraftService) AutoSave(ctx context.Context, d *models.Draft) bool {
	if err := s.Save(ctx, d); err != nil {
		s.logger.Warn(ctx, "draft auto-save failed", "draft_id", d.ID, "error", err)
		if s.OnWarning != nil {
			s.OnWarning(err)
		}
		return false
	}
	return true
}

// Resume loads a draft together with its photo files grouped by field.
func (s *DraftService) Resume(ctx context.Context, id string) (*models.Draft, map[string][]models.File, error) {
	d, err := drafts.NewSQLiteRepository(s.db).GetDraft(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	files, err := blobs.NewSQLiteRepository(s.db).GetPhotoBlobs(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return d, files, nil
}

func (s *DraftService) List(ctx context.Context) ([]*models.Draft, error) {
	return drafts.NewSQLiteRepository(s.db).ListDrafts(ctx)
}

// Clear removes a draft and its photos together.
func (s *DraftService) Clear(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := drafts.NewSQLiteRepository(tx).DeleteDraft(ctx, id); err != nil {
			return err
		}
		return blobs.NewSQLiteRepository(tx).DeletePhotoBlobs(ctx, id)
	})
}

func describe(files []models.File) []models.PhotoDescriptor {
	out := make([]models.PhotoDescriptor, len(files))
	for i, f := range files {
		out[i] = f.Describe()
	}
	return out
}
