package metadata

import (
	"context"
	"time"
)

// Repository is a small key/value store in the draft database. Entries set
// with SetWithExpiry disappear from reads once they expire.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithExpiry(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context) (int, error)
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
