package chunks

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/dbx"
	"github.com/jmoiron/sqlx"
)

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) MarkUploaded(ctx context.Context, fileID int64, index int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO chunks (file_id, idx, uploaded_at) VALUES (?, ?, ?)`,
		fileID, index, dbx.Millis(r.now()))
	if err != nil {
		return false, fmt.Errorf("failed to record chunk: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *SQLiteRepository) ListByFile(ctx context.Context, fileID int64) ([]int, error) {
	var out []int
	if err := sqlx.SelectContext(ctx, r.db, &out, `SELECT idx FROM chunks WHERE file_id = ? ORDER BY idx`, fileID); err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) CountByFile(ctx context.Context, fileID int64) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) UploadedBytes(ctx context.Context, studyID int64, chunkSize int64) (int64, error) {
	if chunkSize <= 0 {
		return 0, nil
	}
	var n int64
	query := `SELECT COALESCE(SUM(MIN(?, f.size - c.idx * ?)), 0)
		FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE f.study_id = ? AND c.idx * ? < f.size`
	if err := sqlx.GetContext(ctx, r.db, &n, query, chunkSize, chunkSize, studyID, chunkSize); err != nil {
		return 0, fmt.Errorf("failed to sum uploaded bytes: %w", err)
	}
	return n, nil
}
