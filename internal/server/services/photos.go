package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
	"github.com/dmitrijs2005/fleetzen/internal/logging"
	"github.com/dmitrijs2005/fleetzen/internal/server/models"
	"github.com/dmitrijs2005/fleetzen/internal/server/photoproc"
	"github.com/dmitrijs2005/fleetzen/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fleetzen/internal/server/storage"
)

// UploadedFile is one multipart part of a photo upload.
type UploadedFile struct {
	FileName string
	Data     []byte
}

// PhotoUpload carries the form fields shared by every file of an upload.
type PhotoUpload struct {
	AgentID        string
	InterventionID string
	Caption        *string
	PhotoType      string
	Latitude       *float64
	Longitude      *float64
	Files          []UploadedFile
}

type PhotoService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	logger      logging.Logger
	maxBytes    int64
	opts        photoproc.Options
}

func NewPhotoService(db *sql.DB, m repomanager.RepositoryManager, store storage.ObjectStore,
	logger logging.Logger, maxBytes int64, opts photoproc.Options) *PhotoService {
	return &PhotoService{
		db:          db,
		repomanager: m,
		store:       store,
		logger:      logger.With("module", "photos"),
		maxBytes:    maxBytes,
		opts:        opts,
	}
}

// PhotoKey identifies uploaded content; re-uploading the same bytes for the
// same intervention returns the stored record.
func PhotoKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Upload compresses and stores every file of in. Files already stored for
// the intervention are returned as they are.
func (s *PhotoService) Upload(ctx context.Context, in PhotoUpload) ([]api.Photo, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: no photos", common.ErrValidation)
	}
	photoType := in.PhotoType
	if photoType == "" {
		photoType = api.PhotoOther
	}
	switch photoType {
	case api.PhotoBefore, api.PhotoAfter, api.PhotoOther:
	default:
		return nil, fmt.Errorf("%w: photoType must be one of before, after, other", common.ErrValidation)
	}

	rec, err := s.repomanager.Interventions(s.db).GetByID(ctx, in.InterventionID)
	if err != nil {
		return nil, err
	}
	if rec.AgentID != in.AgentID {
		return nil, common.ErrNotFound
	}

	existing, err := s.repomanager.Photos(s.db).ListByIntervention(ctx, in.InterventionID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]*models.Photo, len(existing))
	for _, ph := range existing {
		byKey[ph.PhotoKey] = ph
	}

	out := make([]api.Photo, 0, len(in.Files))
	for _, f := range in.Files {
		if s.maxBytes > 0 && int64(len(f.Data)) > s.maxBytes {
			return nil, fmt.Errorf("%w: %s", common.ErrPayloadTooLarge, f.FileName)
		}
		if _, err := photoproc.DetectMIME(f.Data); err != nil {
			return nil, fmt.Errorf("%s: %w", f.FileName, err)
		}

		key := PhotoKey(f.Data)
		if ph, ok := byKey[key]; ok {
			out = append(out, ph.ToAPI(presign(ctx, s.store, s.logger, ph)))
			continue
		}

		ph, err := s.storeOne(ctx, in, photoType, key, f)
		if err != nil {
			return nil, err
		}
		byKey[key] = ph
		out = append(out, ph.ToAPI(presign(ctx, s.store, s.logger, ph)))
	}

	return out, nil
}

func (s *PhotoService) storeOne(ctx context.Context, in PhotoUpload, photoType, key string, f UploadedFile) (*models.Photo, error) {
	compressed, err := photoproc.Compress(f.Data, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.FileName, err)
	}

	objectKey := storage.PhotoKey(in.InterventionID)
	if err := s.store.Put(ctx, objectKey, compressed, photoproc.OutputMIME); err != nil {
		return nil, err
	}

	ph := &models.Photo{
		ID:             uuid.NewString(),
		InterventionID: in.InterventionID,
		PhotoKey:       key,
		StorageKey:     objectKey,
		FileName:       f.FileName,
		FileSize:       int64(len(compressed)),
		MimeType:       photoproc.OutputMIME,
		Caption:        in.Caption,
		PhotoType:      photoType,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
	}

	var inserted bool
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Photos(tx)
		pos, err := repo.NextPosition(ctx, in.InterventionID)
		if err != nil {
			return err
		}
		ph.Position = pos
		inserted, err = repo.Insert(ctx, ph)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent upload of the same bytes won; the object just put is orphaned
		s.logger.Warn(ctx, "duplicate photo upload", "intervention_id", in.InterventionID, "photo_key", key, "object", objectKey)
		stored, err := s.repomanager.Photos(s.db).ListByIntervention(ctx, in.InterventionID)
		if err != nil {
			return nil, err
		}
		for _, p := range stored {
			if p.PhotoKey == key {
				return p, nil
			}
		}
		return nil, fmt.Errorf("%w: photo %s vanished", common.ErrConflict, key)
	}

	s.logger.Info(ctx, "photo stored", "intervention_id", in.InterventionID, "object", objectKey,
		"original_bytes", len(f.Data), "stored_bytes", len(compressed))
	return ph, nil
}
