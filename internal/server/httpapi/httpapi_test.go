package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/auth"
	"github.com/dmitrijs2005/relaypacs/internal/server/chunkstore"
	"github.com/dmitrijs2005/relaypacs/internal/server/config"
	"github.com/dmitrijs2005/relaypacs/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/relaypacs/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	issuer *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.MaxUploadBytes = 100
	cfg.ChunkSize = 4

	store, err := chunkstore.NewFSStore(t.TempDir())
	require.NoError(t, err)
	rm := repomanager.NewInMemoryRepositoryManager()
	issuer := auth.NewIssuer([]byte("test-secret"), time.Hour, time.Hour)

	users := services.NewUserService(rm, issuer)
	require.NoError(t, users.Seed(context.Background(), []string{"alice:pw", "bob:pw"}))
	uploads := services.NewUploadService(rm, store, issuer, cfg, nil)

	return &testServer{router: NewRouter(NewHandler(uploads, users), issuer, nil), issuer: issuer}
}

func (s *testServer) do(t *testing.T, method, path, token string, body []byte, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func (s *testServer) login(t *testing.T, user string) string {
	t.Helper()
	var resp protocol.LoginResponse
	code := s.do(t, http.MethodPost, protocol.PathLogin, "", mustJSON(t, protocol.LoginRequest{Username: user, Password: "pw"}), &resp)
	require.Equal(t, http.StatusOK, code)
	return resp.AccessToken
}

func initBody(t *testing.T, files int, size int64) []byte {
	return mustJSON(t, protocol.InitRequest{
		StudyMetadata:  protocol.StudyMetadata{PatientName: "Jane Roe", StudyDate: "2024-05-01", Modality: "MR"},
		TotalFiles:     files,
		TotalSizeBytes: size,
	})
}

func (s *testServer) initUpload(t *testing.T, access string, files int, size int64) protocol.InitResponse {
	t.Helper()
	var resp protocol.InitResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, protocol.PathInit, access, initBody(t, files, size), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var resp protocol.HealthResponse
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, protocol.PathHealth, "", nil, &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, protocol.PathHealth, nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 16)

	req := httptest.NewRequest(http.MethodGet, protocol.PathHealth, nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	access := s.login(t, "alice")
	claims, err := s.issuer.Parse(access, protocol.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	var e protocol.ErrorResponse
	code := s.do(t, http.MethodPost, protocol.PathLogin, "", mustJSON(t, protocol.LoginRequest{Username: "alice", Password: "nope"}), &e)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, e.Detail)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, protocol.PathLogin, "", []byte("{"), nil))
}

func TestFullUpload(t *testing.T) {
	s := newTestServer(t)
	access := s.login(t, "alice")
	sess := s.initUpload(t, access, 1, 6)
	assert.EqualValues(t, 4, sess.ChunkSize)

	var chunk protocol.ChunkResponse
	code := s.do(t, http.MethodPut, protocol.ChunkPath(sess.UploadID, "1", 0, 2), sess.UploadToken, []byte("abcd"), &chunk)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, protocol.ChunkResponse{UploadID: sess.UploadID, FileID: "1", ChunkIndex: 0, ReceivedBytes: 4}, chunk)

	// Resending is harmless.
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, protocol.ChunkPath(sess.UploadID, "1", 0, 2), sess.UploadToken, []byte("abcd"), nil))

	var e protocol.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, protocol.CompletePath(sess.UploadID), sess.UploadToken, nil, &e))
	assert.Contains(t, e.Detail, "incomplete")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, protocol.ChunkPath(sess.UploadID, "1", 1, 2), sess.UploadToken, []byte("ef"), nil))

	var st protocol.StatusResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, protocol.StatusPath(sess.UploadID), sess.UploadToken, nil, &st))
	assert.EqualValues(t, 6, st.UploadedBytes)
	assert.Equal(t, 100.0, st.ProgressPercent)
	assert.Equal(t, protocol.FileStatus{Complete: true, ReceivedChunks: []int{0, 1}}, st.Files["1"])

	var done protocol.CompleteResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, protocol.CompletePath(sess.UploadID), sess.UploadToken, nil, &done))
	assert.Equal(t, protocol.CompleteResponse{Status: "complete", UploadID: sess.UploadID}, done)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, protocol.CompletePath(sess.UploadID), sess.UploadToken, nil, nil))
}

func TestInitErrors(t *testing.T) {
	s := newTestServer(t)
	access := s.login(t, "alice")

	var e protocol.ErrorResponse
	assert.Equal(t, http.StatusRequestEntityTooLarge, s.do(t, http.MethodPost, protocol.PathInit, access, initBody(t, 1, 101), &e))
	assert.Contains(t, e.Detail, "exceeds")

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, protocol.PathInit, access, initBody(t, 0, 10), nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, protocol.PathInit, access, []byte("not json"), nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, protocol.PathInit, "", initBody(t, 1, 10), nil))
}

func TestTokenChecks(t *testing.T) {
	s := newTestServer(t)
	access := s.login(t, "alice")
	first := s.initUpload(t, access, 1, 10)
	second := s.initUpload(t, access, 1, 10)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "abc", http.StatusUnauthorized},
		{"access token on upload route", access, http.StatusUnauthorized},
		{"token of another upload", second.UploadToken, http.StatusForbidden},
		{"own token", first.UploadToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(t, http.MethodGet, protocol.StatusPath(first.UploadID), tt.token, nil, nil))
		})
	}

	// An upload token cannot open new sessions.
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, protocol.PathInit, first.UploadToken, initBody(t, 1, 10), nil))
}

func TestPutChunkErrors(t *testing.T) {
	s := newTestServer(t)
	sess := s.initUpload(t, s.login(t, "alice"), 1, 10)
	path := "/upload/" + sess.UploadID + "/chunk"

	tests := []struct {
		name  string
		query string
		body  []byte
		want  int
	}{
		{"empty body", "?chunk_index=0&file_id=1", nil, http.StatusBadRequest},
		{"oversized", "?chunk_index=0&file_id=1", []byte("abcdefgh"), http.StatusRequestEntityTooLarge},
		{"missing index", "?file_id=1", []byte("a"), http.StatusBadRequest},
		{"missing file", "?chunk_index=0", []byte("a"), http.StatusBadRequest},
		{"bad total", "?chunk_index=0&file_id=1&total_chunks=x", []byte("a"), http.StatusBadRequest},
		{"bad file id", "?chunk_index=0&file_id=..", []byte("a"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(t, http.MethodPut, path+tt.query, sess.UploadToken, tt.body, nil))
		})
	}
}

func TestUnknownUpload(t *testing.T) {
	s := newTestServer(t)
	tok, _, err := s.issuer.UploadToken("ghost", "alice")
	require.NoError(t, err)

	var e protocol.ErrorResponse
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, protocol.StatusPath("ghost"), tok, nil, &e))
	assert.Equal(t, "Upload session not found", e.Detail)
}

func TestRefreshToken(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	sess := s.initUpload(t, alice, 1, 10)

	var resp protocol.RefreshResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, protocol.RefreshPath(sess.UploadID), alice, nil, &resp))
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, protocol.StatusPath(sess.UploadID), resp.UploadToken, nil, nil))

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, protocol.RefreshPath(sess.UploadID), s.login(t, "bob"), nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, protocol.RefreshPath("missing"), alice, nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, protocol.PathRefreshToken, alice, nil, nil))
}
