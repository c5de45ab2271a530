package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/cryptox"
	"github.com/dmitrijs2005/relaypacs/internal/logging"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
)

// ChunkAdvisor recommends a chunk size for the current link.
type ChunkAdvisor interface {
	RecommendedChunkSize() int64
}

type SessionOptions struct {
	// RefreshSkew is how long before expiry the token is refreshed.
	RefreshSkew time.Duration
	// Advisor, when set, may lower the server's chunk size for a new session.
	Advisor ChunkAdvisor
}

// SessionManager is the only writer of a study's remote id, upload token and
// chunk size.
type SessionManager struct {
	store StudyStore
	api   client.UploadAPI
	opts  SessionOptions
	log   logging.Logger
	now   func() time.Time

	mu sync.Mutex
}

func NewSessionManager(store StudyStore, api client.UploadAPI, opts SessionOptions, log logging.Logger) *SessionManager {
	if log == nil {
		log = logging.NewNop()
	}
	return &SessionManager{store: store, api: api, opts: opts, log: log, now: time.Now}
}

func sessionOf(st *models.Study) models.Session {
	return models.Session{UploadID: st.UploadID, Token: st.UploadToken, ChunkSize: st.ChunkSize, ExpiresAt: st.ExpiresAt}
}

func (m *SessionManager) expired(st *models.Study) bool {
	return !st.ExpiresAt.IsZero() && !m.now().Before(st.ExpiresAt)
}

// InitSession makes the study addressable on the server. A study that
// already holds a session reuses it, refreshing the token when it has
// expired; only a study without a remote id triggers POST /upload/init.
// Init failures leave the study's status untouched and are returned
// wrapped in ErrInitFailed.
func (m *SessionManager) InitSession(ctx context.Context, studyID int64) (models.Session, error) {
	st, err := m.store.Study(ctx, studyID)
	if err != nil {
		return models.Session{}, err
	}
	if st.Status == models.StatusComplete {
		return models.Session{}, ErrAlreadyComplete
	}

	if st.HasSession() {
		if m.expired(st) {
			if _, err := m.Refresh(ctx, studyID); err != nil {
				return models.Session{}, err
			}
			if st, err = m.store.Study(ctx, studyID); err != nil {
				return models.Session{}, err
			}
		}
		if err := m.store.UpdateStudyStatus(ctx, studyID, models.StatusUploading); err != nil {
			return models.Session{}, err
		}
		m.log.Debug(ctx, "reusing upload session", "study_id", studyID, "upload_id", st.UploadID)
		return sessionOf(st), nil
	}

	resp, err := m.api.InitUpload(ctx, m.initRequest(ctx, st))
	if err != nil {
		m.log.Warn(ctx, "session init failed", "study_id", studyID, "error", err)
		return models.Session{}, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}
	if resp.UploadID == "" || resp.UploadToken == "" || resp.ChunkSize <= 0 {
		return models.Session{}, fmt.Errorf("%w: incomplete init response", ErrInitFailed)
	}

	sess := models.Session{
		UploadID:  resp.UploadID,
		Token:     resp.UploadToken,
		ChunkSize: resp.ChunkSize,
		ExpiresAt: resp.ExpiresAt,
	}
	if sess.ExpiresAt.IsZero() {
		if exp, err := client.TokenExpiry(sess.Token); err == nil {
			sess.ExpiresAt = exp
		}
	}
	if m.opts.Advisor != nil {
		if cs := m.opts.Advisor.RecommendedChunkSize(); cs > 0 && cs < sess.ChunkSize {
			sess.ChunkSize = cs
		}
	}

	// The remote id must be durable before any chunk is sent.
	if err := m.store.SaveSession(ctx, studyID, sess); err != nil {
		m.log.Error(ctx, "failed to persist session", "study_id", studyID, "upload_id", sess.UploadID, "error", err)
		return models.Session{}, err
	}
	if st, err = m.store.Study(ctx, studyID); err != nil {
		return models.Session{}, err
	}
	m.log.Info(ctx, "upload session started", "study_id", studyID, "upload_id", st.UploadID, "chunk_size", st.ChunkSize)
	return sessionOf(st), nil
}

// initRequest maps the study to the init body. A sensitive field that could
// not be decrypted is left out rather than sent as the placeholder.
func (m *SessionManager) initRequest(ctx context.Context, st *models.Study) protocol.InitRequest {
	md := st.Metadata
	clean := func(field, v string) string {
		if v == cryptox.EncryptedPlaceholder {
			m.log.Warn(ctx, "omitting undecryptable field from init", "study_id", st.ID, "field", field)
			return ""
		}
		return v
	}
	return protocol.InitRequest{
		StudyMetadata: protocol.StudyMetadata{
			PatientName:      clean("patient_name", md.PatientName),
			StudyDate:        md.StudyDate,
			Modality:         md.Modality,
			Age:              md.Age,
			Gender:           md.Gender,
			ServiceLevel:     md.ServiceLevel,
			StudyDescription: clean("study_description", md.StudyDescription),
		},
		TotalFiles:      st.TotalFiles,
		TotalSizeBytes:  st.TotalSize,
		ClinicalHistory: clean("clinical_history", md.ClinicalHistory),
	}
}

// Token returns the study's remote id and a usable upload token, refreshing
// it first when it is about to expire. A failed proactive refresh is only
// fatal when the current token has already expired.
func (m *SessionManager) Token(ctx context.Context, studyID int64) (uploadID, token string, err error) {
	st, err := m.store.Study(ctx, studyID)
	if err != nil {
		return "", "", err
	}
	if !st.HasSession() {
		return "", "", ErrSessionNotInitialized
	}
	if st.Status == models.StatusFailed {
		return "", "", ErrSessionFailed
	}
	if st.ExpiresAt.IsZero() || m.now().Add(m.opts.RefreshSkew).Before(st.ExpiresAt) {
		return st.UploadID, st.UploadToken, nil
	}

	if !m.expired(st) {
		tok, err := m.refresh(ctx, st, false)
		if err != nil {
			m.log.Warn(ctx, "proactive token refresh failed", "study_id", studyID, "error", err)
			return st.UploadID, st.UploadToken, nil
		}
		return st.UploadID, tok, nil
	}
	tok, err := m.refresh(ctx, st, true)
	if err != nil {
		return "", "", err
	}
	return st.UploadID, tok, nil
}

// Refresh replaces the study's upload token. On failure the study is
// marked failed and ErrSessionFailed is returned with the cause.
func (m *SessionManager) Refresh(ctx context.Context, studyID int64) (string, error) {
	st, err := m.store.Study(ctx, studyID)
	if err != nil {
		return "", err
	}
	if !st.HasSession() {
		return "", ErrSessionNotInitialized
	}
	return m.refresh(ctx, st, true)
}

func (m *SessionManager) refresh(ctx context.Context, st *models.Study, failOnError bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, exp, err := m.api.RefreshUploadToken(ctx, st.UploadID)
	if err != nil {
		if !failOnError || ctx.Err() != nil {
			return "", err
		}
		if ferr := m.Fail(ctx, st.ID, err); ferr != nil {
			return "", errors.Join(fmt.Errorf("%w: %w", ErrSessionFailed, err), ferr)
		}
		return "", fmt.Errorf("%w: token refresh: %w", ErrSessionFailed, err)
	}
	if err := m.store.UpdateToken(ctx, st.ID, tok, exp); err != nil {
		return "", err
	}
	m.log.Debug(ctx, "upload token refreshed", "study_id", st.ID, "expires_at", exp)
	return tok, nil
}

// Fail moves the study to failed. A study that is already complete is left
// alone.
func (m *SessionManager) Fail(ctx context.Context, studyID int64, cause error) error {
	err := m.store.UpdateStudyStatus(ctx, studyID, models.StatusFailed)
	if errors.Is(err, common.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	m.log.Warn(ctx, "study marked failed", "study_id", studyID, "cause", cause)
	return nil
}

// CompleteSession finalizes the remote upload once every file is fully
// recorded, then marks the study complete and drops its staged content.
// It refuses with ErrUploadIncomplete before that. A failed call leaves the
// study uploading and queues the completion for ReplayPending.
func (m *SessionManager) CompleteSession(ctx context.Context, studyID int64) error {
	st, err := m.store.Study(ctx, studyID)
	if err != nil {
		return err
	}
	switch {
	case st.Status == models.StatusComplete:
		return nil
	case !st.HasSession():
		return ErrSessionNotInitialized
	case st.Status == models.StatusFailed:
		return ErrSessionFailed
	}

	done, err := m.store.StudyComplete(ctx, studyID)
	if err != nil {
		return err
	}
	if !done {
		return ErrUploadIncomplete
	}

	if err := m.complete(ctx, st); err != nil {
		if qerr := m.enqueueCompletion(ctx, st); qerr != nil {
			m.log.Error(ctx, "failed to queue completion", "study_id", studyID, "error", qerr)
		}
		return err
	}
	return m.finish(ctx, studyID)
}

func (m *SessionManager) complete(ctx context.Context, st *models.Study) error {
	uploadID, tok, err := m.Token(ctx, st.ID)
	if err != nil {
		return err
	}
	_, err = m.api.Complete(ctx, uploadID, tok)
	if errors.Is(err, client.ErrUnauthorized) {
		if tok, err = m.refresh(ctx, st, true); err != nil {
			return err
		}
		_, err = m.api.Complete(ctx, uploadID, tok)
	}
	return err
}

func (m *SessionManager) finish(ctx context.Context, studyID int64) error {
	if err := m.store.UpdateStudyStatus(ctx, studyID, models.StatusComplete); err != nil {
		return err
	}
	if n, err := m.store.PurgeContent(ctx, studyID); err != nil {
		m.log.Warn(ctx, "purge after completion failed", "study_id", studyID, "error", err)
	} else {
		m.log.Info(ctx, "upload complete", "study_id", studyID, "files_purged", n)
	}
	return nil
}

func (m *SessionManager) enqueueCompletion(ctx context.Context, st *models.Study) error {
	payload, err := json.Marshal(models.CompletePayload{StudyID: st.ID, UploadID: st.UploadID})
	if err != nil {
		return err
	}
	q := m.store.SyncQueue()
	if _, err := q.FindPending(ctx, models.ActionUploadComplete, payload); err == nil {
		return nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	_, err = q.Enqueue(ctx, models.ActionUploadComplete, payload, m.now())
	return err
}
