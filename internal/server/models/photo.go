package models

import (
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/api"
)

// Photo is one row of intervention_photos. PhotoKey is unique per
// intervention and makes repeated deliveries of the same photo a no-op.
type Photo struct {
	ID             string
	InterventionID string
	PhotoKey       string
	StorageKey     string
	URL            string
	FileName       string
	FileSize       int64
	MimeType       string
	Caption        *string
	PhotoType      string
	Latitude       *float64
	Longitude      *float64
	Position       int
	CreatedAt      time.Time
}

// PhotoFromPayload builds a photo row from payload metadata.
func PhotoFromPayload(interventionID string, p api.PhotoPayload) *Photo {
	return &Photo{
		InterventionID: interventionID,
		PhotoKey:       p.Key(),
		URL:            p.URL,
		FileName:       p.FileName,
		FileSize:       p.FileSize,
		MimeType:       p.MimeType,
		Caption:        p.Caption,
		PhotoType:      p.PhotoType,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
	}
}

// ToAPI converts the row; url overrides the stored URL when not empty
// (presigned links are minted per response).
func (p *Photo) ToAPI(url string) api.Photo {
	if url == "" {
		url = p.URL
	}
	return api.Photo{
		ID:             p.ID,
		InterventionID: p.InterventionID,
		URL:            url,
		FileName:       p.FileName,
		FileSize:       p.FileSize,
		MimeType:       p.MimeType,
		Caption:        p.Caption,
		PhotoType:      p.PhotoType,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		Position:       p.Position,
		CreatedAt:      p.CreatedAt,
	}
}
