// Package staging is the durable staging store: studies, their file content
// and per-chunk upload markers, kept in one SQLite database that survives
// process restarts.
//
// Every mutation that reads state and then writes runs in a single
// transaction. The database is opened with _txlock=immediate, so the write
// lock is taken when the transaction begins and two processes sharing the
// file cannot interleave a check with a write.
package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/gate"
	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/cache"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/chunks"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/files"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/studies"
	"github.com/dmitrijs2005/relaypacs/internal/client/repositories/syncqueue"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/dbx"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
	"github.com/jmoiron/sqlx"
)

var (
	ErrStudyNotQueued  = errors.New("files can only be added to a queued study")
	ErrMetadataLocked  = errors.New("metadata can only be edited while the study is queued")
	ErrNoChunkSize     = errors.New("study has no chunk size yet")
	ErrChunkOutOfRange = errors.New("chunk index out of range")
	ErrSizeMismatch    = errors.New("content length does not match declared size")
	ErrEmptyStudy      = errors.New("study has no files")
	// ErrEmptyFile rejects zero-byte files, which have no chunk to send.
	ErrEmptyFile = errors.New("file is empty")
)

// quotaHeadroom is applied to the incoming bytes before comparing with the
// configured quota.
const quotaHeadroom = 1.1

// sqliteFull is SQLITE_FULL; extended codes keep it in the low byte.
const sqliteFull = 13

type Store struct {
	db    *sqlx.DB
	gate  *gate.Gate
	quota int64
	log   logging.Logger
	now   func() time.Time
}

type Option func(*Store)

// WithGate routes study metadata through g on write and read.
func WithGate(g *gate.Gate) Option {
	return func(s *Store) { s.gate = g }
}

// WithQuota caps the bytes of staged content. Zero disables the check.
func WithQuota(bytes int64) Option {
	return func(s *Store) { s.quota = bytes }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, log: logging.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// studies returns the study repository over db, wrapped by the gate when
// one is configured.
func (s *Store) studies(db dbx.DBTX) studies.Repository {
	r := studies.NewSQLiteRepository(db)
	if s.gate == nil {
		return r
	}
	return s.gate.Wrap(r)
}

// rawStudies skips the gate; used where metadata is not touched.
func (s *Store) rawStudies(db dbx.DBTX) studies.Repository {
	return studies.NewSQLiteRepository(db)
}

func (s *Store) files(db dbx.DBTX) files.Repository {
	return files.NewSQLiteRepository(db)
}

func (s *Store) chunks(db dbx.DBTX) chunks.Repository {
	return chunks.NewSQLiteRepository(db)
}

// Cache exposes the ancillary response cache kept in the same database.
func (s *Store) Cache() cache.Repository {
	return cache.NewSQLiteRepository(s.db)
}

// SyncQueue exposes the retryable action queue kept in the same database.
func (s *Store) SyncQueue() syncqueue.Repository {
	return syncqueue.NewSQLiteRepository(s.db)
}

func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return mapStorageErr(dbx.WithTx(ctx, s.db, nil, fn))
}

// mapStorageErr turns a full database into ErrStorageQuotaExceeded.
func mapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) && coded.Code()&0xff == sqliteFull {
		return fmt.Errorf("%w: %w", common.ErrStorageQuotaExceeded, err)
	}
	return err
}

func (s *Store) checkQuota(ctx context.Context, incoming int64) error {
	if s.quota <= 0 {
		return nil
	}
	staged, err := s.files(s.db).StagedBytes(ctx)
	if err != nil {
		return err
	}
	need := int64(float64(incoming) * quotaHeadroom)
	if staged+need > s.quota {
		return fmt.Errorf("%w: %d staged, %d requested, quota %d",
			common.ErrStorageQuotaExceeded, staged, incoming, s.quota)
	}
	return nil
}

// CreateStudy stages md and every file in one transaction and returns the
// new study id. Totals are computed from files.
func (s *Store) CreateStudy(ctx context.Context, md models.StudyMetadata, newFiles []models.NewFile) (int64, error) {
	if len(newFiles) == 0 {
		return 0, ErrEmptyStudy
	}
	var total int64
	for _, f := range newFiles {
		if len(f.Content) == 0 {
			return 0, fmt.Errorf("%w: %s", ErrEmptyFile, f.Name)
		}
		total += int64(len(f.Content))
	}
	if err := s.checkQuota(ctx, total); err != nil {
		return 0, err
	}

	study := &models.Study{
		Status:     models.StatusQueued,
		Metadata:   md,
		TotalFiles: len(newFiles),
		TotalSize:  total,
		CreatedAt:  s.now(),
	}

	var id int64
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		if id, err = s.studies(tx).Create(ctx, study); err != nil {
			return err
		}
		fr := s.files(tx)
		for _, f := range newFiles {
			rec := &models.FileRecord{StudyID: id, FileName: f.Name, FileType: f.Type, Size: int64(len(f.Content))}
			if _, err := fr.Create(ctx, rec, f.Content); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info(ctx, "study staged", "study_id", id, "files", len(newFiles), "bytes", total)
	return id, nil
}

// AddFile stages one more file on a queued study and bumps its totals in
// the same transaction.
func (s *Store) AddFile(ctx context.Context, studyID int64, name, fileType string, size int64, content []byte) (int64, error) {
	if int64(len(content)) != size {
		return 0, fmt.Errorf("%w: %d != %d", ErrSizeMismatch, len(content), size)
	}
	if size == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}
	if err := s.checkQuota(ctx, size); err != nil {
		return 0, err
	}

	var id int64
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		sr := s.rawStudies(tx)
		st, err := sr.Get(ctx, studyID)
		if err != nil {
			return err
		}
		if st.Status != models.StatusQueued {
			return fmt.Errorf("%w: study %d is %s", ErrStudyNotQueued, studyID, st.Status)
		}
		rec := &models.FileRecord{StudyID: studyID, FileName: name, FileType: fileType, Size: size}
		if id, err = s.files(tx).Create(ctx, rec, content); err != nil {
			return err
		}
		return sr.AddTotals(ctx, studyID, 1, size)
	})
	return id, err
}

func (s *Store) Study(ctx context.Context, id int64) (*models.Study, error) {
	return s.studies(s.db).Get(ctx, id)
}

func (s *Store) StudyByUploadID(ctx context.Context, uploadID string) (*models.Study, error) {
	return s.studies(s.db).GetByUploadID(ctx, uploadID)
}

// Studies lists studies in id order, optionally filtered by status.
func (s *Store) Studies(ctx context.Context, statuses ...models.StudyStatus) ([]*models.Study, error) {
	return s.studies(s.db).List(ctx, statuses...)
}

// Files lists the study's files in insertion order.
func (s *Store) Files(ctx context.Context, studyID int64) ([]*models.FileRecord, error) {
	return s.files(s.db).ListByStudy(ctx, studyID)
}

func (s *Store) File(ctx context.Context, fileID int64) (*models.FileRecord, error) {
	return s.files(s.db).Get(ctx, fileID)
}

// UploadedChunks returns the acknowledged chunk indices of a file in
// ascending order.
func (s *Store) UploadedChunks(ctx context.Context, fileID int64) ([]int, error) {
	return s.chunks(s.db).ListByFile(ctx, fileID)
}

// ReadChunk returns exactly length bytes of the file starting at offset.
func (s *Store) ReadChunk(ctx context.Context, fileID int64, offset, length int64) ([]byte, error) {
	return s.files(s.db).ReadRange(ctx, fileID, offset, length)
}

// UpdateMetadata replaces the metadata of a queued study. Once a session
// exists the server already holds the metadata, so edits are refused.
func (s *Store) UpdateMetadata(ctx context.Context, studyID int64, md models.StudyMetadata) error {
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		st, err := s.rawStudies(tx).Get(ctx, studyID)
		if err != nil {
			return err
		}
		if st.Status != models.StatusQueued || st.HasSession() {
			return fmt.Errorf("%w: study %d is %s", ErrMetadataLocked, studyID, st.Status)
		}
		return s.studies(tx).UpdateMetadata(ctx, studyID, md)
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "study metadata updated", "study_id", studyID)
	return nil
}

// UpdateStudyStatus moves a study to status, rejecting backward moves and
// any move out of complete with common.ErrInvalidTransition.
func (s *Store) UpdateStudyStatus(ctx context.Context, studyID int64, status models.StudyStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", common.ErrInvalidTransition, status)
	}
	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		sr := s.rawStudies(tx)
		st, err := sr.Get(ctx, studyID)
		if err != nil {
			return err
		}
		if st.Status == status {
			return nil
		}
		if !models.CanTransition(st.Status, status) {
			return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, st.Status, status)
		}
		return sr.UpdateStatus(ctx, studyID, status)
	})
}

// SaveSession persists the negotiated session and moves the study to
// uploading in one write. Once any chunk has been recorded the study keeps
// its original chunk size, since recorded indices are only meaningful for
// that size.
func (s *Store) SaveSession(ctx context.Context, studyID int64, sess models.Session) error {
	if sess.UploadID == "" || sess.Token == "" || sess.ChunkSize <= 0 {
		return fmt.Errorf("incomplete session for study %d", studyID)
	}
	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		sr := s.rawStudies(tx)
		st, err := sr.Get(ctx, studyID)
		if err != nil {
			return err
		}
		if !models.CanTransition(st.Status, models.StatusUploading) {
			return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, st.Status, models.StatusUploading)
		}
		if st.ChunkSize > 0 && st.ChunkSize != sess.ChunkSize {
			sent, err := s.chunks(tx).UploadedBytes(ctx, studyID, st.ChunkSize)
			if err != nil {
				return err
			}
			if sent > 0 {
				s.log.Warn(ctx, "keeping frozen chunk size", "study_id", studyID,
					"chunk_size", st.ChunkSize, "offered", sess.ChunkSize)
				sess.ChunkSize = st.ChunkSize
			}
		}
		return sr.SaveSession(ctx, studyID, sess, models.StatusUploading)
	})
}

func (s *Store) UpdateToken(ctx context.Context, studyID int64, token string, expiresAt time.Time) error {
	return mapStorageErr(s.rawStudies(s.db).UpdateToken(ctx, studyID, token, expiresAt))
}

func (s *Store) TouchSyncAttempt(ctx context.Context, studyID int64) error {
	return s.rawStudies(s.db).TouchSyncAttempt(ctx, studyID, s.now())
}

// RecordChunkUploaded marks chunk index of a file as acknowledged and
// refreshes the cached study progress, all in one transaction. Recording
// an index twice is a no-op. Call it only after the server acknowledged
// the chunk.
func (s *Store) RecordChunkUploaded(ctx context.Context, fileID int64, index int) (float64, error) {
	var progress float64
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		f, err := s.files(tx).Get(ctx, fileID)
		if err != nil {
			return err
		}
		sr := s.rawStudies(tx)
		st, err := sr.Get(ctx, f.StudyID)
		if err != nil {
			return err
		}
		if st.ChunkSize <= 0 {
			return fmt.Errorf("%w: study %d", ErrNoChunkSize, st.ID)
		}
		if n := models.TotalChunks(f.Size, st.ChunkSize); index < 0 || index >= n {
			return fmt.Errorf("%w: file %d index %d of %d", ErrChunkOutOfRange, fileID, index, n)
		}

		cr := s.chunks(tx)
		if _, err := cr.MarkUploaded(ctx, fileID, index); err != nil {
			return err
		}
		uploaded, err := cr.UploadedBytes(ctx, st.ID, st.ChunkSize)
		if err != nil {
			return err
		}
		progress = percent(uploaded, st.TotalSize)
		return sr.UpdateProgress(ctx, st.ID, progress)
	})
	return progress, err
}

func percent(uploaded, total int64) float64 {
	if total <= 0 {
		return 100
	}
	return float64(uploaded) / float64(total) * 100
}

// Progress recomputes the study's progress from the recorded chunks.
func (s *Store) Progress(ctx context.Context, studyID int64) (float64, error) {
	st, err := s.rawStudies(s.db).Get(ctx, studyID)
	if err != nil {
		return 0, err
	}
	uploaded, err := s.chunks(s.db).UploadedBytes(ctx, studyID, st.ChunkSize)
	if err != nil {
		return 0, err
	}
	return percent(uploaded, st.TotalSize), nil
}

// FileComplete reports whether every chunk index of the file is recorded
// under the given chunk size.
func (s *Store) FileComplete(ctx context.Context, fileID int64, chunkSize int64) (bool, error) {
	f, err := s.files(s.db).Get(ctx, fileID)
	if err != nil {
		return false, err
	}
	return s.fileComplete(ctx, s.db, f, chunkSize)
}

func (s *Store) fileComplete(ctx context.Context, db dbx.DBTX, f *models.FileRecord, chunkSize int64) (bool, error) {
	if chunkSize <= 0 {
		return false, nil
	}
	n, err := s.chunks(db).CountByFile(ctx, f.ID)
	if err != nil {
		return false, err
	}
	return n >= models.TotalChunks(f.Size, chunkSize), nil
}

// StudyComplete reports whether every file of the study is complete under
// the study's chunk size.
func (s *Store) StudyComplete(ctx context.Context, studyID int64) (bool, error) {
	st, err := s.rawStudies(s.db).Get(ctx, studyID)
	if err != nil {
		return false, err
	}
	if st.ChunkSize <= 0 {
		return false, nil
	}
	list, err := s.files(s.db).ListByStudy(ctx, studyID)
	if err != nil {
		return false, err
	}
	for _, f := range list {
		ok, err := s.fileComplete(ctx, s.db, f, st.ChunkSize)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// PurgeContent drops the staged bytes of the study's files. Chunk markers
// and the study row are kept.
func (s *Store) PurgeContent(ctx context.Context, studyID int64) (int64, error) {
	return s.files(s.db).PurgeContent(ctx, studyID)
}

// DeleteStudy removes the study; files and chunk markers go with it.
func (s *Store) DeleteStudy(ctx context.Context, studyID int64) error {
	return s.rawStudies(s.db).Delete(ctx, studyID)
}

// DeleteStudiesCreatedBefore deletes, in one transaction, every study in
// one of statuses created before cutoff, and returns the deleted ids.
func (s *Store) DeleteStudiesCreatedBefore(ctx context.Context, cutoff time.Time, statuses ...models.StudyStatus) ([]int64, error) {
	var ids []int64
	err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		sr := s.rawStudies(tx)
		list, err := sr.ListCreatedBefore(ctx, cutoff, statuses...)
		if err != nil {
			return err
		}
		for _, st := range list {
			if err := sr.Delete(ctx, st.ID); err != nil {
				return err
			}
			ids = append(ids, st.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// StagedBytes is the content still held for all studies.
func (s *Store) StagedBytes(ctx context.Context) (int64, error) {
	return s.files(s.db).StagedBytes(ctx)
}
