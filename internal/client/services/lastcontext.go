package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fleetzen/internal/client/repositories/metadata"
)

const (
	lastContextKey = "last_context"

	// LastContextTTL is how long a remembered selection stays valid.
	LastContextTTL = 24 * time.Hour
)

// LastContext is the client and vehicle most recently worked on, offered as
// defaults for the next draft.
type LastContext struct {
	ClientID  string    `json:"clientId"`
	VehicleID string    `json:"vehicleId"`
	TypeID    string    `json:"typeId,omitempty"`
	SavedAt   time.Time `json:"savedAt"`
}

// LastContextCache keeps LastContext in the metadata store with its own
// expiry, independent of any draft.
type LastContextCache struct {
	store metadata.Repository
	now   func() time.Time
}

func NewLastContextCache(store metadata.Repository) *LastContextCache {
	return &LastContextCache{store: store, now: time.Now}
}

func (c *LastContextCache) Remember(ctx context.Context, lc LastContext) error {
	lc.SavedAt = c.now()
	b, err := json.Marshal(lc)
	if err != nil {
		return fmt.Errorf("failed to encode last context: %w", err)
	}
	return c.store.SetWithExpiry(ctx, lastContextKey, b, lc.SavedAt.Add(LastContextTTL))
}

// Recall returns the remembered context, nil when none is stored or it
// has expired.
func (c *LastContextCache) Recall(ctx context.Context) (*LastContext, error) {
	b, err := c.store.Get(ctx, lastContextKey)
	if err != nil || b == nil {
		return nil, err
	}
	var lc LastContext
	if err := json.Unmarshal(b, &lc); err != nil {
		return nil, fmt.Errorf("failed to decode last context: %w", err)
	}
	return &lc, nil
}

func (c *LastContextCache) Forget(ctx context.Context) error {
	return c.store.Delete(ctx, lastContextKey)
}
