package studies

import (
	"context"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
)

// Repository describes persistence of Study records.
type Repository interface {
	// Create inserts s and returns the new id. Status, totals and CreatedAt
	// are taken from s as-is.
	Create(ctx context.Context, s *models.Study) (int64, error)

	// Get returns the Study or common.ErrNotFound.
	Get(ctx context.Context, id int64) (*models.Study, error)

	// GetByUploadID looks a Study up by its remote upload id.
	GetByUploadID(ctx context.Context, uploadID string) (*models.Study, error)

	// List returns studies in id order, filtered by status when any are given.
	List(ctx context.Context, statuses ...models.StudyStatus) ([]*models.Study, error)

	// ListCreatedBefore returns studies created strictly before cutoff, in
	// any of the given statuses.
	ListCreatedBefore(ctx context.Context, cutoff time.Time, statuses ...models.StudyStatus) ([]*models.Study, error)

	UpdateStatus(ctx context.Context, id int64, status models.StudyStatus) error
	UpdateMetadata(ctx context.Context, id int64, md models.StudyMetadata) error

	// SaveSession stores the negotiated session and sets status in one write.
	SaveSession(ctx context.Context, id int64, sess models.Session, status models.StudyStatus) error

	UpdateToken(ctx context.Context, id int64, token string, expiresAt time.Time) error
	UpdateProgress(ctx context.Context, id int64, progress float64) error
	AddTotals(ctx context.Context, id int64, files int, size int64) error
	TouchSyncAttempt(ctx context.Context, id int64, at time.Time) error

	Delete(ctx context.Context, id int64) error
}
