// Package photos persists intervention photo records. (intervention_id,
// photo_key) is unique so re-delivered photos are skipped, not duplicated.
package photos

import (
	"context"

	"github.com/dmitrijs2005/fleetzen/internal/server/models"
)

type Repository interface {
	ListByIntervention(ctx context.Context, interventionID string) ([]*models.Photo, error)
	// Insert stores p unless a photo with the same key already exists for the
	// intervention; inserted is false in that case.
	Insert(ctx context.Context, p *models.Photo) (inserted bool, err error)
	NextPosition(ctx context.Context, interventionID string) (int, error)
}
