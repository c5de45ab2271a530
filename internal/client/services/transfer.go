package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
)

// MetricSink receives the timing of every acknowledged chunk.
type MetricSink interface {
	ReportUploadMetric(bytes int64, d time.Duration)
}

// DrainResult summarizes one Drain call.
type DrainResult struct {
	Sent     int
	Skipped  int
	Bytes    int64
	Progress float64
	// Complete reports whether every file is fully recorded. Drain never
	// calls completion itself.
	Complete bool
}

type TransferEngine struct {
	store    StudyStore
	api      client.UploadAPI
	sessions *SessionManager
	metrics  MetricSink
	log      logging.Logger
	now      func() time.Time
}

func NewTransferEngine(store StudyStore, api client.UploadAPI, sessions *SessionManager, metrics MetricSink, log logging.Logger) *TransferEngine {
	if log == nil {
		log = logging.NewNop()
	}
	return &TransferEngine{store: store, api: api, sessions: sessions, metrics: metrics, log: log, now: time.Now}
}

// FileRef is the file_id sent with every chunk of f.
func FileRef(f *models.FileRecord) string {
	return strconv.FormatInt(f.ID, 10)
}

// Drain sends every chunk of the study that is not yet recorded, in file
// insertion order and ascending index. Each acknowledged chunk is recorded
// before the next one is read. The first failure stops the drain and is
// returned as is; nothing about the failed chunk is recorded, so calling
// Drain again resumes exactly where it stopped.
func (e *TransferEngine) Drain(ctx context.Context, studyID int64) (DrainResult, error) {
	var res DrainResult

	st, err := e.store.Study(ctx, studyID)
	if err != nil {
		return res, err
	}
	switch st.Status {
	case models.StatusComplete:
		return res, ErrAlreadyComplete
	case models.StatusFailed:
		return res, ErrSessionFailed
	case models.StatusQueued:
		return res, ErrSessionNotInitialized
	}
	if !st.HasSession() {
		return res, ErrSessionNotInitialized
	}
	cs := st.ChunkSize

	list, err := e.store.Files(ctx, studyID)
	if err != nil {
		return res, err
	}

	for _, f := range list {
		total := models.TotalChunks(f.Size, cs)
		recorded, err := e.store.UploadedChunks(ctx, f.ID)
		if err != nil {
			return res, err
		}
		have := make(map[int]bool, len(recorded))
		for _, i := range recorded {
			have[i] = true
		}

		for i := 0; i < total; i++ {
			if have[i] {
				res.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			n, progress, err := e.sendChunk(ctx, st, f, i, total)
			if err != nil {
				e.log.Warn(ctx, "chunk not sent", "study_id", studyID, "file_id", f.ID, "chunk_index", i, "error", err)
				return res, err
			}
			res.Sent++
			res.Bytes += n
			res.Progress = progress
		}
	}

	if res.Progress, err = e.store.Progress(ctx, studyID); err != nil {
		return res, err
	}
	if res.Complete, err = e.store.StudyComplete(ctx, studyID); err != nil {
		return res, err
	}
	e.log.Info(ctx, "drain finished", "study_id", studyID, "sent", res.Sent, "skipped", res.Skipped,
		"progress", res.Progress, "complete", res.Complete)
	return res, nil
}

// sendChunk transmits chunk index of f and records it once acknowledged.
// An auth rejection triggers one token refresh and one resend; a second
// rejection fails the study.
func (e *TransferEngine) sendChunk(ctx context.Context, st *models.Study, f *models.FileRecord, index, total int) (int64, float64, error) {
	offset, length := models.ChunkRange(f.Size, st.ChunkSize, index)
	data, err := e.store.ReadChunk(ctx, f.ID, offset, length)
	if err != nil {
		return 0, 0, err
	}
	chunk := client.Chunk{FileRef: FileRef(f), Index: index, TotalChunks: total, Data: data}

	uploadID, tok, err := e.sessions.Token(ctx, st.ID)
	if err != nil {
		return 0, 0, err
	}

	start := e.now()
	_, err = e.api.PutChunk(ctx, uploadID, tok, chunk)
	if errors.Is(err, client.ErrUnauthorized) {
		if tok, err = e.sessions.Refresh(ctx, st.ID); err != nil {
			return 0, 0, err
		}
		start = e.now()
		_, err = e.api.PutChunk(ctx, uploadID, tok, chunk)
		if errors.Is(err, client.ErrUnauthorized) {
			if ferr := e.sessions.Fail(ctx, st.ID, err); ferr != nil {
				e.log.Error(ctx, "failed to mark study failed", "study_id", st.ID, "error", ferr)
			}
			return 0, 0, fmt.Errorf("%w: chunk rejected after refresh: %w", ErrSessionFailed, err)
		}
	}
	if err != nil {
		return 0, 0, err
	}
	elapsed := e.now().Sub(start)

	progress, err := e.store.RecordChunkUploaded(ctx, f.ID, index)
	if err != nil {
		return 0, 0, err
	}
	if e.metrics != nil {
		e.metrics.ReportUploadMetric(length, elapsed)
	}
	return length, progress, nil
}
