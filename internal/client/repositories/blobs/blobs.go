// Package blobs stores the binary photo attachments of drafts, separate
// from the draft records themselves.
package blobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
)

// Repository stores photo blobs addressed by draft id and form field.
type Repository interface {
	// SavePhotoBlobs appends files to the field, in order.
	SavePhotoBlobs(ctx context.Context, draftID, field string, files []models.File) error
	// GetPhotoBlobs returns the draft's files grouped by field in insertion
	// order, or an empty map.
	GetPhotoBlobs(ctx context.Context, draftID string) (map[string][]models.File, error)
	DeletePhotoBlobs(ctx context.Context, draftID string) error
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SavePhotoBlobs(ctx context.Context, draftID, field string, files []models.File) error {
	query := `INSERT INTO photo_blobs (draft_id, field_name, file_name, mime_type, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().UnixMilli()
	for _, f := range files {
		data := f.Data
		if data == nil {
			data = []byte{}
		}
		if _, err := r.db.ExecContext(ctx, query, draftID, field, f.Name, f.MimeType, data, now); err != nil {
			return fmt.Errorf("failed to insert photo blob: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetPhotoBlobs(ctx context.Context, draftID string) (map[string][]models.File, error) {
	query := `SELECT field_name, file_name, mime_type, data FROM photo_blobs WHERE draft_id = ? ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to select photo blobs: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]models.File)
	for rows.Next() {
		var (
			field string
			f     models.File
		)
		if err := rows.Scan(&field, &f.Name, &f.MimeType, &f.Data); err != nil {
			return nil, fmt.Errorf("failed to scan photo blob: %w", err)
		}
		result[field] = append(result[field], f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeletePhotoBlobs(ctx context.Context, draftID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM photo_blobs WHERE draft_id = ?`, draftID); err != nil {
		return fmt.Errorf("failed to delete photo blobs: %w", err)
	}
	return nil
}
