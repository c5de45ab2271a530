package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dmitrijs2005/relaypacs/internal/client/config"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	dir  string
	db   string
	key  string
	base []string
}

func newEnv(t *testing.T, server string) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{dir: dir, db: filepath.Join(dir, "staging.db"), key: filepath.Join(dir, "session.key")}
	e.base = []string{"--db", e.db, "--key-file", e.key, "--log-level", "error"}
	if server != "" {
		e.base = append(e.base, "--server", server, "--token", "user-token")
	}
	return e
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), append(append([]string{}, e.base...), args...), strings.NewReader(""), &out)
	return out.String(), err
}

func (e *env) file(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0o600))
	return path
}

func (e *env) stage(t *testing.T) {
	t.Helper()
	out, err := e.run(t, "stage", "--patient", "Doe^Jane", "--date", "2024-05-01", "--modality", "CT",
		"--history", "chest pain", e.file(t, "a.dcm", 1000), e.file(t, "b.dcm", 500))
	require.NoError(t, err)
	require.Contains(t, out, "Staged study 1 (2 files, 1500 bytes)")
}

func TestStageListStatus(t *testing.T) {
	e := newEnv(t, "")
	e.stage(t)

	out, err := e.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Doe^Jane")
	assert.Contains(t, out, "queued")

	out, err = e.run(t, "list", "--status", "complete")
	require.NoError(t, err)
	assert.NotContains(t, out, "Doe^Jane")

	out, err = e.run(t, "status", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Study 1: queued")
	assert.Contains(t, out, "a.dcm")
	assert.Contains(t, out, "b.dcm")
}

func TestEdit(t *testing.T) {
	e := newEnv(t, "")
	e.stage(t)

	out, err := e.run(t, "edit", "--patient", "Roe^Jane", "--history", "follow-up", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated study 1 (history, patient)")

	out, err = e.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Roe^Jane")
	assert.NotContains(t, out, "Doe^Jane")

	_, err = e.run(t, "edit", "1")
	require.Error(t, err, "no fields given")

	_, err = e.run(t, "edit", "--modality", "", "1")
	require.Error(t, err, "required field cleared")
}

func TestStage_RequiresMetadata(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "stage", "--patient", "Doe", e.file(t, "a.dcm", 10))
	require.Error(t, err)
}

func TestList_UnknownStatus(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "list", "--status", "lost")
	require.Error(t, err)
}

func TestStatus_InvalidID(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "status", "abc")
	require.Error(t, err)
}

func TestEndSession_RemovesKey(t *testing.T) {
	e := newEnv(t, "")
	e.stage(t)
	_, err := os.Stat(e.key)
	require.NoError(t, err, "staging an encrypted field creates the session key")

	out, err := e.run(t, "end-session")
	require.NoError(t, err)
	assert.Contains(t, out, "Session key removed")

	_, err = os.Stat(e.key)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	out, err = e.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Doe^Jane")
}

func TestUpload_ServerUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newEnv(t, srv.URL)
	e.stage(t)

	out, err := e.run(t, "upload", "--retries", "1", "--backoff", "1ms", "1")
	require.Error(t, err)
	assert.Contains(t, out, "Failed to start upload. Please try again.")

	out, err = e.run(t, "status", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Study 1: queued")
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestSweepAndReplay_Empty(t *testing.T) {
	e := newEnv(t, "")
	e.stage(t)

	out, err := e.run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 abandoned")

	out, err = e.run(t, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed 0")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Execute(context.Background(), []string{"version"}, nil, &out))
	assert.Contains(t, out.String(), "Build version:")
}

func TestFileType(t *testing.T) {
	assert.Equal(t, dicomType, fileType("IMG0001.DCM"))
	assert.Equal(t, dicomType, fileType("IMG0001"))
	assert.Equal(t, "application/pdf", fileType("report.pdf"))
}

func TestPromptLogin_NoUser(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	a := &App{cfg: cfg, in: bufio.NewReader(strings.NewReader("")), out: &bytes.Buffer{}}
	p := &promptLogin{app: a, hc: http.DefaultClient}

	_, err := p.Token(context.Background())
	require.ErrorIs(t, err, errNoCredentials)
	assert.False(t, p.Invalidate())
}

func TestPromptLogin_AsksOnce(t *testing.T) {
	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tech", req.Username)
		assert.Equal(t, "hunter2", req.Password)
		logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(protocol.LoginResponse{AccessToken: "access"})
	}))
	defer srv.Close()

	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	var asked int
	readPassword = func(int) ([]byte, error) {
		asked++
		return []byte("hunter2"), nil
	}

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ServerURL = srv.URL
	var out bytes.Buffer
	a := &App{cfg: cfg, in: bufio.NewReader(strings.NewReader("tech")), out: &out}
	p := &promptLogin{app: a, hc: srv.Client()}

	for range 2 {
		tok, err := p.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "access", tok)
	}
	assert.Equal(t, 1, asked)
	assert.EqualValues(t, 1, logins.Load())
	assert.Contains(t, out.String(), "Username for "+srv.URL)
	assert.Contains(t, out.String(), "Password for tech")
}
