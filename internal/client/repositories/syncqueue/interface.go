// Package syncqueue persists retryable actions that could not be completed
// online, such as an upload completion that failed after every chunk was
// acknowledged.
package syncqueue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
)

type Repository interface {
	Enqueue(ctx context.Context, action models.SyncAction, payload []byte, at time.Time) (int64, error)
	// FindPending returns the pending item with exactly this action and
	// payload, or common.ErrNotFound.
	FindPending(ctx context.Context, action models.SyncAction, payload []byte) (*models.SyncQueueItem, error)
	// ListByStatus returns items in insertion order.
	ListByStatus(ctx context.Context, status models.SyncStatus, action models.SyncAction) ([]*models.SyncQueueItem, error)
	// RecordAttempt bumps the attempt counter and stores the outcome.
	RecordAttempt(ctx context.Context, id int64, status models.SyncStatus, lastErr string, at time.Time) error
	// DeleteCompletedBefore removes completed items last attempted before cutoff.
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
