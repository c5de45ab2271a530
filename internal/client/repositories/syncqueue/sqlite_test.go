package syncqueue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/client"
	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := client.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "staging.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db)
}

func TestEnqueueFindAttempt(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"study_id":1,"upload_id":"u-1"}`)

	id, err := r.Enqueue(ctx, models.ActionUploadComplete, payload, t0)
	require.NoError(t, err)

	item, err := r.FindPending(ctx, models.ActionUploadComplete, payload)
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, models.SyncPending, item.Status)
	assert.Zero(t, item.Attempts)
	assert.True(t, t0.Equal(item.CreatedAt))

	_, err = r.FindPending(ctx, models.ActionUploadComplete, []byte(`{}`))
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, r.RecordAttempt(ctx, id, models.SyncPending, "server unavailable", t0.Add(time.Minute)))
	pending, err := r.ListByStatus(ctx, models.SyncPending, models.ActionUploadComplete)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "server unavailable", pending[0].LastError)

	require.NoError(t, r.RecordAttempt(ctx, id, models.SyncCompleted, "", t0.Add(2*time.Minute)))
	done, err := r.ListByStatus(ctx, models.SyncCompleted, models.ActionUploadComplete)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, 2, done[0].Attempts)
	assert.Empty(t, done[0].LastError)

	require.ErrorIs(t, r.RecordAttempt(ctx, 999, models.SyncFailed, "x", t0), common.ErrNotFound)
}

func TestDeleteCompletedBefore(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	now := time.Now()

	oldDone, err := r.Enqueue(ctx, models.ActionUploadComplete, []byte("a"), now.Add(-40*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, r.RecordAttempt(ctx, oldDone, models.SyncCompleted, "", now.Add(-31*24*time.Hour)))

	recentDone, err := r.Enqueue(ctx, models.ActionUploadComplete, []byte("b"), now.Add(-40*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, r.RecordAttempt(ctx, recentDone, models.SyncCompleted, "", now.Add(-time.Hour)))

	_, err = r.Enqueue(ctx, models.ActionUploadComplete, []byte("c"), now.Add(-40*24*time.Hour))
	require.NoError(t, err)

	n, err := r.DeleteCompletedBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err := r.ListByStatus(ctx, models.SyncPending, models.ActionUploadComplete)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "old pending items are never pruned")
}
