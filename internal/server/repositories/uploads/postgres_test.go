package uploads

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/models"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestPostgres_Create(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+uploads`).
		WithArgs("u1", "alice", []byte(`{"patient_name":"Doe","study_date":"2024-05-01","modality":"CT"}`),
			"", 1, int64(10), int64(4), protocol.StateUploading, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Upload{
		ID: "u1", Owner: "alice", TotalFiles: 1, TotalBytes: 10, ChunkSize: 4,
		Metadata: protocol.StudyMetadata{PatientName: "Doe", StudyDate: "2024-05-01", Modality: "CT"},
		State:    protocol.StateUploading, CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`(?s)^SELECT\s+id,\s*owner.*FROM\s+uploads\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "u1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgres_Get(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "owner", "metadata", "clinical_history", "total_files", "total_bytes", "chunk_size", "state", "created_at", "completed_at"}).
		AddRow("u1", "alice", []byte(`{"patient_name":"Doe"}`), "cough", 2, int64(10), int64(4), protocol.StateComplete, now, now)
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+uploads`).WithArgs("u1").WillReturnRows(rows)

	u, err := repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Doe", u.Metadata.PatientName)
	assert.Equal(t, "cough", u.ClinicalHistory)
	assert.True(t, u.CompletedAt.Equal(now))
}

func TestPostgres_AddChunk(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^INSERT\s+INTO\s+upload_chunks.*ON\s+CONFLICT\s+DO\s+NOTHING`

	mock.ExpectExec(q).WithArgs("u1", "f", 0, int64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("u1", "f", 0, int64(4)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q).WithArgs("u1", "f", 1, int64(4)).WillReturnError(errors.New("db down"))

	ok, err := repo.AddChunk(context.Background(), "u1", models.ChunkRef{FileID: "f", Index: 0, Size: 4})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.AddChunk(context.Background(), "u1", models.ChunkRef{FileID: "f", Index: 0, Size: 4})
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = repo.AddChunk(context.Background(), "u1", models.ChunkRef{FileID: "f", Index: 1, Size: 4})
	require.ErrorContains(t, err, "db down")
}

func TestPostgres_MarkComplete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Now()
	q := `(?s)^UPDATE\s+uploads\s+SET\s+state`

	mock.ExpectExec(q).WithArgs("u1", protocol.StateComplete, at).WillReturnResult(sqlmock.NewResult(0, 1))
	changed, err := repo.MarkComplete(context.Background(), "u1", at)
	require.NoError(t, err)
	assert.True(t, changed)

	mock.ExpectExec(q).WithArgs("u2", protocol.StateComplete, at).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+uploads`).WithArgs("u2").WillReturnError(sql.ErrNoRows)
	_, err = repo.MarkComplete(context.Background(), "u2", at)
	require.ErrorIs(t, err, common.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Chunks(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	rows := sqlmock.NewRows([]string{"file_id", "chunk_index", "size"}).
		AddRow("a", 0, int64(4)).
		AddRow("a", 1, int64(2))
	mock.ExpectQuery(`(?s)^SELECT\s+file_id,\s*chunk_index,\s*size\s+FROM\s+upload_chunks`).
		WithArgs("u1").WillReturnRows(rows)

	got, err := repo.Chunks(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []models.ChunkRef{{FileID: "a", Index: 0, Size: 4}, {FileID: "a", Index: 1, Size: 2}}, got)
}

func TestPostgres_DeleteIncompleteBefore(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cutoff := time.Now()
	mock.ExpectQuery(`(?s)^DELETE\s+FROM\s+uploads.*RETURNING\s+id`).
		WithArgs(protocol.StateComplete, cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))

	ids, err := repo.DeleteIncompleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)
}
