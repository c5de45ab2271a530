package dbx

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openMarkers(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "markers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.MustExec(`CREATE TABLE markers (file_id INTEGER, chunk_index INTEGER, PRIMARY KEY (file_id, chunk_index))`)
	return db
}

func markers(t *testing.T, db *sqlx.DB) []int {
	t.Helper()
	var got []int
	require.NoError(t, db.Select(&got, `SELECT chunk_index FROM markers ORDER BY chunk_index`))
	return got
}

func insertMarker(ctx context.Context, tx DBTX, idx int) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO markers (file_id, chunk_index) VALUES (1, ?)`, idx)
	return err
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db := openMarkers(t)

	require.NoError(t, WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		if err := insertMarker(ctx, tx, 0); err != nil {
			return err
		}
		return insertMarker(ctx, tx, 1)
	}))
	assert.Equal(t, []int{0, 1}, markers(t, db))

	errStop := errors.New("stop")
	err := WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insertMarker(ctx, tx, 2))
		return errStop
	})
	require.ErrorIs(t, err, errStop)
	assert.Equal(t, []int{0, 1}, markers(t, db), "failed tx leaves no marker")

	assert.Panics(t, func() {
		_ = WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
			require.NoError(t, insertMarker(ctx, tx, 3))
			panic("crash mid-transaction")
		})
	})
	assert.Equal(t, []int{0, 1}, markers(t, db))
}

func TestWithTx_ReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	db := openMarkers(t)

	require.NoError(t, WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		require.NoError(t, insertMarker(ctx, tx, 4))
		var n int
		require.NoError(t, sqlx.GetContext(ctx, tx, &n, `SELECT COUNT(*) FROM markers`))
		assert.Equal(t, 1, n)
		return nil
	}))
}

func TestWithTx_BeginAndCommitErrors(t *testing.T) {
	ctx := context.Background()

	closed := openMarkers(t)
	require.NoError(t, closed.Close())
	err := WithTx(ctx, closed, nil, func(context.Context, DBTX) error { return nil })
	require.ErrorContains(t, err, "begin tx")

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err = WithTx(ctx, sqlx.NewDb(raw, "sqlmock"), nil, func(context.Context, DBTX) error { return nil })
	require.ErrorContains(t, err, "commit tx")
	require.NoError(t, mock.ExpectationsWereMet())
}
