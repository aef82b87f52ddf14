package photos

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fleetzen/internal/dbx"
	"github.com/dmitrijs2005/fleetzen/internal/server/models"
)

// PostgresRepository implements photo storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByIntervention returns the photos of an intervention in display order.
func (r *PostgresRepository) ListByIntervention(ctx context.Context, interventionID string) ([]*models.Photo, error) {
	query := `
		SELECT id, intervention_id, photo_key, storage_key, url, file_name, file_size, mime_type,
			caption, photo_type, latitude, longitude, position, created_at
		FROM intervention_photos
		WHERE intervention_id = $1
		ORDER BY position, created_at`

	rows, err := r.db.QueryContext(ctx, query, interventionID)
	if err != nil {
		return nil, fmt.Errorf("failed to select photos: %w", err)
	}
	defer rows.Close()

	var result []*models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(
			&p.ID, &p.InterventionID, &p.PhotoKey, &p.StorageKey, &p.URL, &p.FileName, &p.FileSize, &p.MimeType,
			&p.Caption, &p.PhotoType, &p.Latitude, &p.Longitude, &p.Position, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, p *models.Photo) (bool, error) {
	query := `
		INSERT INTO intervention_photos (id, intervention_id, photo_key, storage_key, url, file_name, file_size,
			mime_type, caption, photo_type, latitude, longitude, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (intervention_id, photo_key) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.InterventionID, p.PhotoKey, p.StorageKey, p.URL, p.FileName, p.FileSize,
		p.MimeType, p.Caption, p.PhotoType, p.Latitude, p.Longitude, p.Position)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// NextPosition returns the position after the last stored photo, 0 when the
// intervention has none.
func (r *PostgresRepository) NextPosition(ctx context.Context, interventionID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM intervention_photos WHERE intervention_id = $1`,
		interventionID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return next, nil
}
