// Package cache persists cached server responses with least-recently-used
// bookkeeping so the sweeper can bound their number.
package cache

import (
	"context"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
)

type Repository interface {
	// Get returns the entry for key, or common.ErrNotFound.
	Get(ctx context.Context, key string) (*models.CacheMetadata, error)
	// Set inserts or replaces the entry for m.CacheKey.
	Set(ctx context.Context, m *models.CacheMetadata) error
	// Touch marks key as accessed at the given time.
	Touch(ctx context.Context, key string, at time.Time) error
	Delete(ctx context.Context, key string) error
	Count(ctx context.Context) (int, error)
	// EvictLRU deletes all but the keep most recently accessed entries and
	// returns how many were removed.
	EvictLRU(ctx context.Context, keep int) (int64, error)
}
