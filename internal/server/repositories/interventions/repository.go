// Package interventions persists reconciled intervention records in
// PostgreSQL. local_id is unique, which makes reconciliation an upsert.
package interventions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/server/models"
)

type Repository interface {
	GetByLocalID(ctx context.Context, localID string) (*models.Intervention, error)
	GetByID(ctx context.Context, id string) (*models.Intervention, error)
	// Upsert inserts rec or, when its local_id already exists, updates the
	// existing row. The returned record is the row as stored; created
	// reports whether this call inserted it.
	Upsert(ctx context.Context, rec *models.Intervention) (stored *models.Intervention, created bool, err error)
	Update(ctx context.Context, rec *models.Intervention) error
	NextNumber(ctx context.Context, now time.Time) (string, error)
}
