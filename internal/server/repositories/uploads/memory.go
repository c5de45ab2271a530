package uploads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/models"
)

type chunkKey struct {
	fileID string
	index  int
}

type memUpload struct {
	upload models.Upload
	chunks map[chunkKey]int64
	totals map[string]int
}

// MemoryRepository keeps sessions in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	uploads map[string]*memUpload
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{uploads: make(map[string]*memUpload)}
}

func (r *MemoryRepository) Create(_ context.Context, u *models.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[u.ID] = &memUpload{upload: *u, chunks: make(map[chunkKey]int64), totals: make(map[string]int)}
	return nil
}

func (r *MemoryRepository) get(id string) (*memUpload, error) {
	m, ok := r.uploads[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return m, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}
	u := m.upload
	return &u, nil
}

func (r *MemoryRepository) MarkComplete(_ context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(id)
	if err != nil {
		return false, err
	}
	if m.upload.State == protocol.StateComplete {
		return false, nil
	}
	m.upload.State = protocol.StateComplete
	m.upload.CompletedAt = at
	return true, nil
}

func (r *MemoryRepository) AddChunk(_ context.Context, uploadID string, c models.ChunkRef) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(uploadID)
	if err != nil {
		return false, err
	}
	k := chunkKey{c.FileID, c.Index}
	if _, ok := m.chunks[k]; ok {
		return false, nil
	}
	m.chunks[k] = c.Size
	return true, nil
}

func (r *MemoryRepository) SetFileTotal(_ context.Context, uploadID, fileID string, totalChunks int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(uploadID)
	if err != nil {
		return err
	}
	m.totals[fileID] = totalChunks
	return nil
}

func (r *MemoryRepository) Chunks(_ context.Context, uploadID string) ([]models.ChunkRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(uploadID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ChunkRef, 0, len(m.chunks))
	for k, size := range m.chunks {
		out = append(out, models.ChunkRef{FileID: k.fileID, Index: k.index, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FileID != out[j].FileID {
			return out[i].FileID < out[j].FileID
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (r *MemoryRepository) FileTotals(_ context.Context, uploadID string) ([]models.FileTotal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.get(uploadID)
	if err != nil {
		return nil, err
	}
	out := make([]models.FileTotal, 0, len(m.totals))
	for id, n := range m.totals {
		out = append(out, models.FileTotal{FileID: id, TotalChunks: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func (r *MemoryRepository) DeleteIncompleteBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, m := range r.uploads {
		if m.upload.State != protocol.StateComplete && m.upload.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
			delete(r.uploads, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
