package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/cache"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/syncqueue"
)

// StudyStore is the part of staging.Store the services use.
type StudyStore interface {
	CreateStudy(ctx context.Context, md models.StudyMetadata, files []models.NewFile) (int64, error)
	Study(ctx context.Context, id int64) (*models.Study, error)
	Studies(ctx context.Context, statuses ...models.StudyStatus) ([]*models.Study, error)
	Files(ctx context.Context, studyID int64) ([]*models.FileRecord, error)
	UploadedChunks(ctx context.Context, fileID int64) ([]int, error)
	ReadChunk(ctx context.Context, fileID int64, offset, length int64) ([]byte, error)

	UpdateMetadata(ctx context.Context, studyID int64, md models.StudyMetadata) error
	UpdateStudyStatus(ctx context.Context, studyID int64, status models.StudyStatus) error
	SaveSession(ctx context.Context, studyID int64, sess models.Session) error
	UpdateToken(ctx context.Context, studyID int64, token string, expiresAt time.Time) error
	TouchSyncAttempt(ctx context.Context, studyID int64) error

	RecordChunkUploaded(ctx context.Context, fileID int64, index int) (float64, error)
	Progress(ctx context.Context, studyID int64) (float64, error)
	StudyComplete(ctx context.Context, studyID int64) (bool, error)

	PurgeContent(ctx context.Context, studyID int64) (int64, error)
	DeleteStudiesCreatedBefore(ctx context.Context, cutoff time.Time, statuses ...models.StudyStatus) ([]int64, error)

	Cache() cache.Repository
	SyncQueue() syncqueue.Repository
}
