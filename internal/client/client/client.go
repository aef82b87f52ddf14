package client

import (
	"context"

	"github.com/dmitrijs2005/fleetzen/internal/api"
	"github.com/dmitrijs2005/fleetzen/internal/client/models"
)

// Client is the sync server API used by the agent.
type Client interface {
	Ping(ctx context.Context) error
	WhoAmI(ctx context.Context) (string, error)
	CreateIntervention(ctx context.Context, p *api.InterventionPayload) (*api.Intervention, bool, error)
	SyncBatch(ctx context.Context, items []api.InterventionPayload) (*api.BatchResponse, error)
	UploadPhotos(ctx context.Context, interventionID, photoType string, files []models.File) ([]api.Photo, error)
	GetIntervention(ctx context.Context, localID string) (*api.Intervention, error)
}

// TokenSource returns the current access token, "" when the agent has not
// logged in.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken is a TokenSource that always returns token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}
