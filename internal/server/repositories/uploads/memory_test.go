package uploads

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, r Repository, id string, created time.Time) {
	t.Helper()
	require.NoError(t, r.Create(context.Background(), &models.Upload{
		ID: id, Owner: "alice", TotalFiles: 2, TotalBytes: 10, ChunkSize: 4,
		State: protocol.StateUploading, CreatedAt: created,
	}))
}

func TestMemory_Chunks(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	seed(t, r, "u1", time.Now())

	ok, err := r.AddChunk(ctx, "u1", models.ChunkRef{FileID: "2", Index: 0, Size: 4})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.AddChunk(ctx, "u1", models.ChunkRef{FileID: "1", Index: 1, Size: 2})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.AddChunk(ctx, "u1", models.ChunkRef{FileID: "1", Index: 0, Size: 4})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.AddChunk(ctx, "u1", models.ChunkRef{FileID: "1", Index: 0, Size: 99})
	require.NoError(t, err)
	assert.False(t, ok, "duplicate chunk is ignored")

	got, err := r.Chunks(ctx, "u1")
	require.NoError(t, err)
	want := []models.ChunkRef{{FileID: "1", Index: 0, Size: 4}, {FileID: "1", Index: 1, Size: 2}, {FileID: "2", Index: 0, Size: 4}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("chunks mismatch (-want +got):\n%s", diff)
	}

	_, err = r.AddChunk(ctx, "missing", models.ChunkRef{FileID: "1"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemory_FileTotalsAndComplete(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	seed(t, r, "u1", time.Now())

	require.NoError(t, r.SetFileTotal(ctx, "u1", "b", 3))
	require.NoError(t, r.SetFileTotal(ctx, "u1", "a", 1))
	require.NoError(t, r.SetFileTotal(ctx, "u1", "b", 2))
	totals, err := r.FileTotals(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.FileTotal{{FileID: "a", TotalChunks: 1}, {FileID: "b", TotalChunks: 2}}, totals)

	at := time.Now()
	changed, err := r.MarkComplete(ctx, "u1", at)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = r.MarkComplete(ctx, "u1", at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	u, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, protocol.StateComplete, u.State)
	assert.True(t, u.CompletedAt.Equal(at))

	_, err = r.MarkComplete(ctx, "nope", at)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestMemory_DeleteIncompleteBefore(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	now := time.Now()
	seed(t, r, "old", now.Add(-48*time.Hour))
	seed(t, r, "old-done", now.Add(-48*time.Hour))
	seed(t, r, "new", now)
	_, err := r.MarkComplete(ctx, "old-done", now)
	require.NoError(t, err)

	ids, err := r.DeleteIncompleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, ids)

	_, err = r.Get(ctx, "old")
	require.ErrorIs(t, err, common.ErrNotFound)
	_, err = r.Get(ctx, "old-done")
	require.NoError(t, err)
}
