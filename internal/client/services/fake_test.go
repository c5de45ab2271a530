package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
)

type putCall struct {
	UploadID string
	Token    string
	FileRef  string
	Index    int
	Total    int
	Data     []byte
}

// fakeAPI is an in-memory upload server. Chunk PUTs and completion are
// idempotent, like the real one.
type fakeAPI struct {
	mu sync.Mutex

	chunkSize int64
	ceiling   int64
	tokenTTL  time.Duration
	now       func() time.Time

	inits     []protocol.InitRequest
	puts      []putCall
	completes int
	refreshes int
	statuses  int

	// putBudget, when >= 0, is how many PUTs succeed before the link drops.
	putBudget int
	// lostAcks makes the next n PUTs reach the server but fail for the client.
	lostAcks int
	// unauthorized makes the next n PUTs fail with 401.
	unauthorized int

	refreshErr  error
	completeErr error
	statusErr   error

	seq      int
	received map[string]map[int]bool
}

func newFakeAPI(chunkSize int64) *fakeAPI {
	return &fakeAPI{
		chunkSize: chunkSize,
		tokenTTL:  time.Hour,
		now:       time.Now,
		putBudget: -1,
		received:  map[string]map[int]bool{},
	}
}

func (f *fakeAPI) nextToken(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeAPI) InitUpload(_ context.Context, req protocol.InitRequest) (*protocol.InitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, req)
	if f.ceiling > 0 && req.TotalSizeBytes > f.ceiling {
		return nil, &client.APIError{StatusCode: http.StatusRequestEntityTooLarge, Message: "study exceeds size limit"}
	}
	return &protocol.InitResponse{
		UploadID:    f.nextToken("upload"),
		UploadToken: f.nextToken("token"),
		ChunkSize:   f.chunkSize,
		ExpiresAt:   f.now().Add(f.tokenTTL),
	}, nil
}

func (f *fakeAPI) PutChunk(_ context.Context, uploadID, token string, c client.Chunk) (*protocol.ChunkResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unauthorized > 0 {
		f.unauthorized--
		return nil, &client.APIError{StatusCode: http.StatusUnauthorized, Message: "token expired"}
	}
	if f.putBudget == 0 {
		return nil, fmt.Errorf("%w: connection reset", client.ErrUnavailable)
	}
	if f.putBudget > 0 {
		f.putBudget--
	}

	data := append([]byte(nil), c.Data...)
	f.puts = append(f.puts, putCall{UploadID: uploadID, Token: token, FileRef: c.FileRef, Index: c.Index, Total: c.TotalChunks, Data: data})
	if f.received[c.FileRef] == nil {
		f.received[c.FileRef] = map[int]bool{}
	}
	f.received[c.FileRef][c.Index] = true

	if f.lostAcks > 0 {
		f.lostAcks--
		return nil, fmt.Errorf("%w: response lost", client.ErrUnavailable)
	}
	return &protocol.ChunkResponse{UploadID: uploadID, FileID: c.FileRef, ChunkIndex: c.Index, ReceivedBytes: int64(len(data))}, nil
}

func (f *fakeAPI) Complete(_ context.Context, uploadID, _ string) (*protocol.CompleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completes++
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &protocol.CompleteResponse{Status: protocol.StateComplete, UploadID: uploadID}, nil
}

func (f *fakeAPI) Status(_ context.Context, uploadID, _ string) (*protocol.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &protocol.StatusResponse{
		UploadID: uploadID,
		State:    protocol.StateUploading,
		Files:    map[string]protocol.FileStatus{},
	}, nil
}

func (f *fakeAPI) RefreshUploadToken(_ context.Context, _ string) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return "", time.Time{}, f.refreshErr
	}
	return f.nextToken("refreshed"), f.now().Add(f.tokenTTL), nil
}

func (f *fakeAPI) Ping(context.Context) error { return nil }

func (f *fakeAPI) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}
