// Package drafts persists in-progress intervention forms in the draft
// database. It is type-agnostic: form data is stored as encoded by
// models.EncodeFormData and never validated here.
package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
)

// Repository stores drafts keyed by a caller-chosen id.
type Repository interface {
	// SaveDraft upserts d; the last write wins.
	SaveDraft(ctx context.Context, d *models.Draft) error
	// GetDraft returns common.ErrNotFound when id is unknown.
	GetDraft(ctx context.Context, id string) (*models.Draft, error)
	// DeleteDraft is idempotent.
	DeleteDraft(ctx context.Context, id string) error
	// ListDrafts returns every draft, most recently updated first.
	ListDrafts(ctx context.Context) ([]*models.Draft, error)
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) SaveDraft(ctx context.Context, d *models.Draft) error {
	formData, err := models.EncodeFormData(d.FormData)
	if err != nil {
		return fmt.Errorf("failed to encode draft %s: %w", d.ID, err)
	}

	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `INSERT INTO drafts (id, type_prestation, form_data, current_step, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET type_prestation = excluded.type_prestation,
			form_data = excluded.form_data,
			current_step = excluded.current_step,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query, d.ID, string(d.TypePrestation), formData, d.CurrentStep, updatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert draft: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(s scanner) (*models.Draft, error) {
	var (
		d         models.Draft
		typ       string
		formData  []byte
		updatedAt int64
	)
	if err := s.Scan(&d.ID, &typ, &formData, &d.CurrentStep, &updatedAt); err != nil {
		return nil, err
	}

	fd, err := models.DecodeFormData(formData)
	if err != nil {
		return nil, fmt.Errorf("draft %s: %w", d.ID, err)
	}
	d.TypePrestation = models.PrestationType(typ)
	d.FormData = fd
	d.UpdatedAt = time.UnixMilli(updatedAt)
	return &d, nil
}

func (r *SQLiteRepository) GetDraft(ctx context.Context, id string) (*models.Draft, error) {
	query := `SELECT id, type_prestation, form_data, current_step, updated_at FROM drafts WHERE id = ?`

	d, err := scanDraft(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) DeleteDraft(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListDrafts(ctx context.Context) ([]*models.Draft, error) {
	query := `SELECT id, type_prestation, form_data, current_step, updated_at
		FROM drafts ORDER BY updated_at DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select drafts: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Draft, 0)
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
