package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
)

// UploadService is the entry point for callers: stage a study, start or
// resume its upload, and watch its progress.
type UploadService interface {
	CreateStudy(ctx context.Context, md models.StudyMetadata, files []models.NewFile) (int64, error)
	// EditMetadata applies edit to the stored metadata of a queued study.
	EditMetadata(ctx context.Context, studyID int64, edit func(*models.StudyMetadata)) error
	InitializeSession(ctx context.Context, studyID int64) (models.Session, error)
	// ProcessUpload drains the study and, once every chunk is recorded,
	// completes the session.
	ProcessUpload(ctx context.Context, studyID int64) (DrainResult, error)
	StartUpload(ctx context.Context, studyID int64) (DrainResult, error)

	Study(ctx context.Context, studyID int64) (*models.Study, error)
	Studies(ctx context.Context, statuses ...models.StudyStatus) ([]*models.Study, error)
	Files(ctx context.Context, studyID int64) ([]FileProgress, error)
	RemoteStatus(ctx context.Context, studyID int64) (*RemoteStatus, error)
	ReplayPending(ctx context.Context) (ReplayReport, error)
}

// FileProgress is a file together with its recorded chunks.
type FileProgress struct {
	File           *models.FileRecord
	UploadedChunks []int
	TotalChunks    int
	Complete       bool
}

// RemoteStatus is the server's view of an upload. Stale is set when the
// server could not be reached and a cached snapshot is returned instead.
type RemoteStatus struct {
	protocol.StatusResponse
	FetchedAt time.Time
	Stale     bool
}

type ReplayReport struct {
	Attempted int
	Completed int
	Failed    int
}

type cachedStatus struct {
	FetchedAt time.Time               `json:"fetched_at"`
	Status    protocol.StatusResponse `json:"status"`
}

type uploadService struct {
	store    StudyStore
	api      client.UploadAPI
	sessions *SessionManager
	engine   *TransferEngine
	log      logging.Logger
	now      func() time.Time
}

func NewUploadService(store StudyStore, api client.UploadAPI, sessions *SessionManager, engine *TransferEngine, log logging.Logger) UploadService {
	if log == nil {
		log = logging.NewNop()
	}
	return &uploadService{store: store, api: api, sessions: sessions, engine: engine, log: log, now: time.Now}
}

func (s *uploadService) CreateStudy(ctx context.Context, md models.StudyMetadata, files []models.NewFile) (int64, error) {
	return s.store.CreateStudy(ctx, md, files)
}

func (s *uploadService) InitializeSession(ctx context.Context, studyID int64) (models.Session, error) {
	return s.sessions.InitSession(ctx, studyID)
}

func (s *uploadService) ProcessUpload(ctx context.Context, studyID int64) (DrainResult, error) {
	res, err := s.engine.Drain(ctx, studyID)
	if err != nil {
		return res, err
	}
	if !res.Complete {
		return res, ErrUploadIncomplete
	}
	if err := s.sessions.CompleteSession(ctx, studyID); err != nil {
		return res, err
	}
	return res, nil
}

func (s *uploadService) StartUpload(ctx context.Context, studyID int64) (DrainResult, error) {
	if _, err := s.InitializeSession(ctx, studyID); err != nil {
		return DrainResult{}, err
	}
	return s.ProcessUpload(ctx, studyID)
}

func (s *uploadService) EditMetadata(ctx context.Context, studyID int64, edit func(*models.StudyMetadata)) error {
	st, err := s.store.Study(ctx, studyID)
	if err != nil {
		return err
	}
	md := st.Metadata
	edit(&md)
	if md.PatientName == "" || md.StudyDate == "" || md.Modality == "" {
		return ErrMissingMetadata
	}
	return s.store.UpdateMetadata(ctx, studyID, md)
}

func (s *uploadService) Study(ctx context.Context, studyID int64) (*models.Study, error) {
	return s.store.Study(ctx, studyID)
}

func (s *uploadService) Studies(ctx context.Context, statuses ...models.StudyStatus) ([]*models.Study, error) {
	return s.store.Studies(ctx, statuses...)
}

func (s *uploadService) Files(ctx context.Context, studyID int64) ([]FileProgress, error) {
	st, err := s.store.Study(ctx, studyID)
	if err != nil {
		return nil, err
	}
	list, err := s.store.Files(ctx, studyID)
	if err != nil {
		return nil, err
	}

	out := make([]FileProgress, 0, len(list))
	for _, f := range list {
		idx, err := s.store.UploadedChunks(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		fp := FileProgress{File: f, UploadedChunks: idx}
		if st.ChunkSize > 0 {
			fp.TotalChunks = models.TotalChunks(f.Size, st.ChunkSize)
			fp.Complete = len(idx) >= fp.TotalChunks
		}
		out = append(out, fp)
	}
	return out, nil
}

func statusCacheKey(uploadID string) string {
	return "upload-status:" + uploadID
}

// RemoteStatus asks the server for the upload's state and caches the
// answer. When the server is unreachable the last cached answer is returned
// with Stale set.
func (s *uploadService) RemoteStatus(ctx context.Context, studyID int64) (*RemoteStatus, error) {
	st, err := s.store.Study(ctx, studyID)
	if err != nil {
		return nil, err
	}
	if st.UploadID == "" {
		return nil, ErrSessionNotInitialized
	}
	key := statusCacheKey(st.UploadID)
	c := s.store.Cache()

	resp, err := s.api.Status(ctx, st.UploadID, st.UploadToken)
	if errors.Is(err, client.ErrUnauthorized) && st.Status != models.StatusComplete {
		var tok string
		if _, tok, err = s.sessions.Token(ctx, studyID); err == nil {
			resp, err = s.api.Status(ctx, st.UploadID, tok)
		}
	}
	if err != nil {
		if !errors.Is(err, client.ErrUnavailable) {
			return nil, err
		}
		cached, cerr := c.Get(ctx, key)
		if errors.Is(cerr, common.ErrNotFound) {
			return nil, err
		}
		if cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		var cs cachedStatus
		if jerr := json.Unmarshal(cached.Payload, &cs); jerr != nil {
			return nil, errors.Join(err, fmt.Errorf("decode cached status: %w", jerr))
		}
		if terr := c.Touch(ctx, key, s.now()); terr != nil {
			s.log.Debug(ctx, "cache touch failed", "key", key, "error", terr)
		}
		return &RemoteStatus{StatusResponse: cs.Status, FetchedAt: cs.FetchedAt, Stale: true}, nil
	}

	now := s.now()
	payload, err := json.Marshal(cachedStatus{FetchedAt: now, Status: *resp})
	if err != nil {
		return nil, err
	}
	entry := &models.CacheMetadata{
		ResourceURL:  protocol.StatusPath(st.UploadID),
		CacheKey:     key,
		Payload:      payload,
		LastAccessed: now,
	}
	if err := c.Set(ctx, entry); err != nil {
		s.log.Warn(ctx, "failed to cache upload status", "study_id", studyID, "error", err)
	}
	return &RemoteStatus{StatusResponse: *resp, FetchedAt: now}, nil
}

// ReplayPending retries every queued completion. Items whose server could
// not be reached stay pending; other failures are marked failed.
func (s *uploadService) ReplayPending(ctx context.Context) (ReplayReport, error) {
	var rep ReplayReport
	q := s.store.SyncQueue()

	items, err := q.ListByStatus(ctx, models.SyncPending, models.ActionUploadComplete)
	if err != nil {
		return rep, err
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Attempted++

		status, errMsg := s.replayCompletion(ctx, it)
		switch status {
		case models.SyncCompleted:
			rep.Completed++
		case models.SyncFailed:
			rep.Failed++
		}
		if err := q.RecordAttempt(ctx, it.ID, status, errMsg, s.now()); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (s *uploadService) replayCompletion(ctx context.Context, it *models.SyncQueueItem) (models.SyncStatus, string) {
	var p models.CompletePayload
	if err := json.Unmarshal(it.Payload, &p); err != nil {
		return models.SyncFailed, fmt.Sprintf("decode payload: %v", err)
	}
	if err := s.store.TouchSyncAttempt(ctx, p.StudyID); err != nil && !errors.Is(err, common.ErrNotFound) {
		s.log.Debug(ctx, "touch sync attempt failed", "study_id", p.StudyID, "error", err)
	}

	err := s.sessions.CompleteSession(ctx, p.StudyID)
	switch {
	case err == nil:
		s.log.Info(ctx, "queued completion replayed", "study_id", p.StudyID, "upload_id", p.UploadID)
		return models.SyncCompleted, ""
	case errors.Is(err, client.ErrUnavailable):
		return models.SyncPending, err.Error()
	default:
		s.log.Warn(ctx, "queued completion failed", "study_id", p.StudyID, "error", err)
		return models.SyncFailed, err.Error()
	}
}
