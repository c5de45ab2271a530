// Package uploads stores upload sessions and the chunks received for them.
package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, u *models.Upload) error
	// Get returns common.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*models.Upload, error)
	// MarkComplete reports false when the upload was already complete.
	MarkComplete(ctx context.Context, id string, at time.Time) (bool, error)
	// AddChunk reports false when the chunk was already recorded; the
	// stored size is then left unchanged.
	AddChunk(ctx context.Context, uploadID string, c models.ChunkRef) (bool, error)
	SetFileTotal(ctx context.Context, uploadID, fileID string, totalChunks int) error
	// Chunks lists recorded chunks ordered by file id and index.
	Chunks(ctx context.Context, uploadID string) ([]models.ChunkRef, error)
	FileTotals(ctx context.Context, uploadID string) ([]models.FileTotal, error)
	// DeleteIncompleteBefore removes unfinished uploads created before
	// cutoff and returns their ids.
	DeleteIncompleteBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}
