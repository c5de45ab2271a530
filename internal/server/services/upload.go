package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/logging"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/auth"
	"github.com/dmitrijs2005/relaypacs/internal/server/chunkstore"
	"github.com/dmitrijs2005/relaypacs/internal/server/config"
	"github.com/dmitrijs2005/relaypacs/internal/server/models"
	"github.com/dmitrijs2005/relaypacs/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const pacsPending = "pending"

type UploadService struct {
	repomanager repomanager.RepositoryManager
	chunks      chunkstore.Store
	issuer      *auth.Issuer
	log         logging.Logger

	maxUploadBytes int64
	chunkSize      int64
	sessionTTL     time.Duration
	now            func() time.Time
	newID          func() string
}

func NewUploadService(m repomanager.RepositoryManager, chunks chunkstore.Store, issuer *auth.Issuer, cfg *config.Config, log logging.Logger) *UploadService {
	if log == nil {
		log = logging.NewNop()
	}
	return &UploadService{
		repomanager:    m,
		chunks:         chunks,
		issuer:         issuer,
		log:            log,
		maxUploadBytes: cfg.MaxUploadBytes,
		chunkSize:      cfg.ChunkSize,
		sessionTTL:     cfg.SessionTTL,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// MaxChunkBytes is the chunk size handed to new sessions.
func (s *UploadService) MaxChunkBytes() int64 { return s.chunkSize }

func validateInit(req protocol.InitRequest) error {
	var missing []string
	md := req.StudyMetadata
	if strings.TrimSpace(md.PatientName) == "" {
		missing = append(missing, "patient_name")
	}
	if strings.TrimSpace(md.StudyDate) == "" {
		missing = append(missing, "study_date")
	}
	if strings.TrimSpace(md.Modality) == "" {
		missing = append(missing, "modality")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if req.TotalFiles <= 0 {
		return fmt.Errorf("%w: total_files must be positive", ErrInvalidRequest)
	}
	if req.TotalSizeBytes <= 0 {
		return fmt.Errorf("%w: total_size_bytes must be positive", ErrInvalidRequest)
	}
	return nil
}

// Init opens an upload session owned by owner. Unfinished sessions older
// than the session TTL are swept first.
func (s *UploadService) Init(ctx context.Context, owner string, req protocol.InitRequest) (*protocol.InitResponse, error) {
	s.CleanupExpired(ctx)

	if err := validateInit(req); err != nil {
		return nil, err
	}
	if req.TotalSizeBytes > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: upload size %d exceeds maximum allowed %d bytes",
			ErrPayloadTooLarge, req.TotalSizeBytes, s.maxUploadBytes)
	}

	u := &models.Upload{
		ID:              s.newID(),
		Owner:           owner,
		Metadata:        req.StudyMetadata,
		ClinicalHistory: req.ClinicalHistory,
		TotalFiles:      req.TotalFiles,
		TotalBytes:      req.TotalSizeBytes,
		ChunkSize:       s.chunkSize,
		State:           protocol.StateUploading,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repomanager.Uploads().Create(ctx, u); err != nil {
		return nil, fmt.Errorf("error creating upload: %w", err)
	}

	token, exp, err := s.issuer.UploadToken(u.ID, owner)
	if err != nil {
		return nil, fmt.Errorf("error signing upload token: %w", err)
	}

	s.log.Info(ctx, "upload initialized", "upload_id", u.ID, "owner", owner,
		"total_files", u.TotalFiles, "total_bytes", u.TotalBytes)

	return &protocol.InitResponse{
		UploadID:    u.ID,
		UploadToken: token,
		ChunkSize:   u.ChunkSize,
		ExpiresAt:   exp,
	}, nil
}

// PutChunk stores one chunk. Re-sending a chunk overwrites the stored bytes
// and does not count twice. totalChunks, when positive, records how many
// chunks the client will send for fileID.
func (s *UploadService) PutChunk(ctx context.Context, uploadID, fileID string, index, totalChunks int, body []byte) (*protocol.ChunkResponse, error) {
	if len(body) == 0 {
		return nil, ErrEmptyChunk
	}
	if !chunkstore.ValidFileID(fileID) {
		return nil, fmt.Errorf("%w: bad file_id", ErrInvalidRequest)
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: chunk_index must not be negative", ErrInvalidRequest)
	}
	if totalChunks > 0 && index >= totalChunks {
		return nil, fmt.Errorf("%w: chunk_index %d out of range", ErrInvalidRequest, index)
	}

	repo := s.repomanager.Uploads()
	u, err := repo.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > u.ChunkSize {
		return nil, fmt.Errorf("%w: chunk of %d bytes exceeds chunk size %d",
			ErrPayloadTooLarge, len(body), u.ChunkSize)
	}

	if err := s.chunks.Put(ctx, uploadID, fileID, index, body); err != nil {
		return nil, fmt.Errorf("error storing chunk: %w", err)
	}
	added, err := repo.AddChunk(ctx, uploadID, models.ChunkRef{FileID: fileID, Index: index, Size: int64(len(body))})
	if err != nil {
		return nil, fmt.Errorf("error recording chunk: %w", err)
	}
	if totalChunks > 0 {
		if err := repo.SetFileTotal(ctx, uploadID, fileID, totalChunks); err != nil {
			return nil, fmt.Errorf("error recording file total: %w", err)
		}
	}
	if !added {
		s.log.Debug(ctx, "duplicate chunk", "upload_id", uploadID, "file_id", fileID, "chunk_index", index)
	}

	return &protocol.ChunkResponse{
		UploadID:      uploadID,
		FileID:        fileID,
		ChunkIndex:    index,
		ReceivedBytes: int64(len(body)),
	}, nil
}

type fileProgress struct {
	received []int
	total    int
	bytes    int64
}

func (s *UploadService) progress(ctx context.Context, uploadID string) (map[string]*fileProgress, error) {
	repo := s.repomanager.Uploads()
	chunks, err := repo.Chunks(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	totals, err := repo.FileTotals(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*fileProgress)
	get := func(id string) *fileProgress {
		f, ok := files[id]
		if !ok {
			f = &fileProgress{received: []int{}}
			files[id] = f
		}
		return f
	}
	for _, c := range chunks {
		f := get(c.FileID)
		f.received = append(f.received, c.Index)
		f.bytes += c.Size
	}
	for _, t := range totals {
		get(t.FileID).total = t.TotalChunks
	}
	for _, f := range files {
		sort.Ints(f.received)
	}
	return files, nil
}

func (f *fileProgress) complete() bool {
	return f.total > 0 && len(f.received) >= f.total
}

// Complete finalizes an upload once every declared file has arrived in
// full. Completing a finished upload again succeeds.
func (s *UploadService) Complete(ctx context.Context, uploadID string) (*protocol.CompleteResponse, error) {
	repo := s.repomanager.Uploads()
	u, err := repo.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	resp := &protocol.CompleteResponse{Status: protocol.StateComplete, UploadID: uploadID}
	if u.State == protocol.StateComplete {
		return resp, nil
	}

	files, err := s.progress(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("error reading progress: %w", err)
	}
	if len(files) < u.TotalFiles {
		return nil, fmt.Errorf("%w: received %d files, expected %d", ErrUploadIncomplete, len(files), u.TotalFiles)
	}
	for id, f := range files {
		if f.total > 0 && !f.complete() {
			return nil, fmt.Errorf("%w: file %s has %d of %d chunks", ErrUploadIncomplete, id, len(f.received), f.total)
		}
	}

	changed, err := repo.MarkComplete(ctx, uploadID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("error completing upload: %w", err)
	}
	if changed {
		s.log.Info(ctx, "upload complete", "upload_id", uploadID, "files", len(files))
	}
	return resp, nil
}

func (s *UploadService) Status(ctx context.Context, uploadID string) (*protocol.StatusResponse, error) {
	u, err := s.repomanager.Uploads().Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	files, err := s.progress(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("error reading progress: %w", err)
	}

	resp := &protocol.StatusResponse{
		UploadID:   uploadID,
		State:      u.State,
		TotalBytes: u.TotalBytes,
		PacsStatus: pacsPending,
		Files:      make(map[string]protocol.FileStatus, len(files)),
	}
	for id, f := range files {
		resp.UploadedBytes += f.bytes
		resp.Files[id] = protocol.FileStatus{Complete: f.complete(), ReceivedChunks: f.received}
	}
	if u.TotalBytes > 0 {
		resp.ProgressPercent = math.Round(float64(resp.UploadedBytes)/float64(u.TotalBytes)*10000) / 100
	}
	return resp, nil
}

// RefreshToken signs a fresh upload token for an upload owned by user.
func (s *UploadService) RefreshToken(ctx context.Context, user, uploadID string) (*protocol.RefreshResponse, error) {
	u, err := s.repomanager.Uploads().Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if u.Owner != user {
		return nil, ErrForbidden
	}
	token, exp, err := s.issuer.UploadToken(uploadID, user)
	if err != nil {
		return nil, fmt.Errorf("error signing upload token: %w", err)
	}
	return &protocol.RefreshResponse{UploadToken: token, ExpiresAt: &exp}, nil
}

// CleanupExpired drops unfinished uploads older than the session TTL along
// with their stored chunks. Failures are logged only.
func (s *UploadService) CleanupExpired(ctx context.Context) int {
	cutoff := s.now().Add(-s.sessionTTL)
	ids, err := s.repomanager.Uploads().DeleteIncompleteBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn(ctx, "expired upload cleanup failed", "error", err)
		return 0
	}
	for _, id := range ids {
		if err := s.chunks.DeleteUpload(ctx, id); err != nil && !errors.Is(err, chunkstore.ErrNotFound) {
			s.log.Warn(ctx, "deleting chunks of expired upload failed", "upload_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		s.log.Info(ctx, "expired uploads removed", "count", len(ids))
	}
	return len(ids)
}
