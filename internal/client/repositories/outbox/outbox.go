// Package outbox is the local submission queue: interventions waiting to
// reach the sync server, kept in their own database.
package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
	"github.com/dmitrijs2005/fleetzen/internal/common"
	"github.com/dmitrijs2005/fleetzen/internal/dbx"
)

// FailedRetention is how long failed submissions are kept before
// CleanupOldFailed removes them.
const FailedRetention = 7 * 24 * time.Hour

// Repository is the submission queue.
type Repository interface {
	QueueIntervention(ctx context.Context, tempID string, payload api.InterventionPayload, photos []models.QueuedPhoto) (int64, error)
	GetPendingInterventions(ctx context.Context) ([]*models.QueuedSubmission, error)
	GetPendingCount(ctx context.Context) (int, error)
	UpdateInterventionStatus(ctx context.Context, seq int64, status models.QueueStatus, errMsg string) error
	DeleteIntervention(ctx context.Context, seq int64) error
	CleanupOldFailed(ctx context.Context, now time.Time) (int, error)
	ListInterventions(ctx context.Context) ([]*models.QueuedSubmission, error)
	GetIntervention(ctx context.Context, seq int64) (*models.QueuedSubmission, error)
	RequeueFailed(ctx context.Context, seqs []int64) (int, error)
	FailStale(ctx context.Context, before time.Time, errMsg string) (int, error)
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const columns = `seq, temp_id, payload, photos, created_at, updated_at, retry_count, last_error, status`

// QueueIntervention stores a pending submission and returns its sequence
// number. A second call with the same tempID fails with common.ErrConflict.
func (r *SQLiteRepository) QueueIntervention(ctx context.Context, tempID string, payload api.InterventionPayload, photos []models.QueuedPhoto) (int64, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}
	if photos == nil {
		photos = []models.QueuedPhoto{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return 0, fmt.Errorf("failed to encode photos: %w", err)
	}

	now := r.now().UnixMilli()
	query := `INSERT INTO outbox (temp_id, payload, photos, created_at, updated_at, retry_count, last_error, status)
		VALUES (?, ?, ?, ?, ?, 0, '', ?)`

	res, err := r.db.ExecContext(ctx, query, tempID, payloadJSON, photosJSON, now, now, string(models.QueueStatusPending))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("%w: submission %s already queued", common.ErrConflict, tempID)
		}
		return 0, fmt.Errorf("failed to queue intervention: %w", err)
	}
	return res.LastInsertId()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(s scanner) (*models.QueuedSubmission, error) {
	var (
		q                    models.QueuedSubmission
		payload, photos      []byte
		createdAt, updatedAt int64
		status               string
	)
	if err := s.Scan(&q.Seq, &q.TempID, &payload, &photos, &createdAt, &updatedAt, &q.RetryCount, &q.LastError, &status); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &q.Payload); err != nil {
		return nil, fmt.Errorf("submission %d: decode payload: %w", q.Seq, err)
	}
	if err := json.Unmarshal(photos, &q.Photos); err != nil {
		return nil, fmt.Errorf("submission %d: decode photos: %w", q.Seq, err)
	}
	q.CreatedAt = time.UnixMilli(createdAt)
	q.UpdatedAt = time.UnixMilli(updatedAt)
	q.Status = models.QueueStatus(status)
	return &q, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]*models.QueuedSubmission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select submissions: %w", err)
	}
	defer rows.Close()

	result := make([]*models.QueuedSubmission, 0)
	for rows.Next() {
		q, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetPendingInterventions returns pending submissions oldest first.
func (r *SQLiteRepository) GetPendingInterventions(ctx context.Context) ([]*models.QueuedSubmission, error) {
	return r.list(ctx, `SELECT `+columns+` FROM outbox WHERE status = ? ORDER BY created_at, seq`,
		string(models.QueueStatusPending))
}

// ListInterventions returns every submission regardless of status.
func (r *SQLiteRepository) ListInterventions(ctx context.Context) ([]*models.QueuedSubmission, error) {
	return r.list(ctx, `SELECT `+columns+` FROM outbox ORDER BY created_at, seq`)
}

func (r *SQLiteRepository) GetIntervention(ctx context.Context, seq int64) (*models.QueuedSubmission, error) {
	q, err := scanSubmission(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM outbox WHERE seq = ?`, seq))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return q, nil
}

func (r *SQLiteRepository) GetPendingCount(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE status = ?`,
		string(models.QueueStatusPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending submissions: %w", err)
	}
	return n, nil
}

// UpdateInterventionStatus sets status and last error. Moving to syncing
// counts an attempt in the same statement.
func (r *SQLiteRepository) UpdateInterventionStatus(ctx context.Context, seq int64, status models.QueueStatus, errMsg string) error {
	query := `UPDATE outbox SET status = ?, last_error = ?, updated_at = ?,
			retry_count = retry_count + CASE WHEN ? = 'syncing' THEN 1 ELSE 0 END
		WHERE seq = ?`

	res, err := r.db.ExecContext(ctx, query, string(status), errMsg, r.now().UnixMilli(), string(status), seq)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}
	return dbx.ExpectRows(res, 1, common.ErrNotFound)
}

func (r *SQLiteRepository) DeleteIntervention(ctx context.Context, seq int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	return nil
}

// CleanupOldFailed deletes failed submissions created more than
// FailedRetention before now and returns how many were removed.
func (r *SQLiteRepository) CleanupOldFailed(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-FailedRetention).UnixMilli()
	res, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE status = ? AND created_at < ?`,
		string(models.QueueStatusFailed), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up submissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RequeueFailed moves the given failed submissions back to pending, or all
// failed ones when seqs is empty. The retry counter is left alone.
func (r *SQLiteRepository) RequeueFailed(ctx context.Context, seqs []int64) (int, error) {
	query := `UPDATE outbox SET status = ?, updated_at = ? WHERE status = ?`
	args := []any{string(models.QueueStatusPending), r.now().UnixMilli(), string(models.QueueStatusFailed)}

	if len(seqs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(seqs)), ",")
		query += ` AND seq IN (` + placeholders + `)`
		for _, s := range seqs {
			args = append(args, s)
		}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue submissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// FailStale marks syncing submissions last touched before the given time as
// failed. These are left behind when the agent stops mid-drain.
func (r *SQLiteRepository) FailStale(ctx context.Context, before time.Time, errMsg string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, last_error = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(models.QueueStatusFailed), errMsg, r.now().UnixMilli(), string(models.QueueStatusSyncing), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to release stale submissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
