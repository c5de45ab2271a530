package files

import (
	"context"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
)

// Repository describes persistence of FileRecord rows.
type Repository interface {
	// Create stores f with its content and returns the new id.
	Create(ctx context.Context, f *models.FileRecord, content []byte) (int64, error)

	// Get returns the record or common.ErrNotFound.
	Get(ctx context.Context, id int64) (*models.FileRecord, error)

	// ListByStudy returns the study's files in insertion order.
	ListByStudy(ctx context.Context, studyID int64) ([]*models.FileRecord, error)

	// ReadRange returns length bytes starting at offset. It fails with
	// ErrContentPurged after PurgeContent and ErrShortRead when the stored
	// content is shorter than requested.
	ReadRange(ctx context.Context, id int64, offset, length int64) ([]byte, error)

	// PurgeContent drops the content of every file of the study.
	PurgeContent(ctx context.Context, studyID int64) (int64, error)

	// StagedBytes is the total size of content still held by the store.
	StagedBytes(ctx context.Context) (int64, error)
}
