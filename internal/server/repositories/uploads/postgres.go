package uploads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/dbx"
	"github.com/dmitrijs2005/relaypacs/internal/protocol"
	"github.com/dmitrijs2005/relaypacs/internal/server/models"
	"github.com/jmoiron/sqlx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type uploadRow struct {
	ID              string       `db:"id"`
	Owner           string       `db:"owner"`
	Metadata        []byte       `db:"metadata"`
	ClinicalHistory string       `db:"clinical_history"`
	TotalFiles      int          `db:"total_files"`
	TotalBytes      int64        `db:"total_bytes"`
	ChunkSize       int64        `db:"chunk_size"`
	State           string       `db:"state"`
	CreatedAt       time.Time    `db:"created_at"`
	CompletedAt     sql.NullTime `db:"completed_at"`
}

func (r *PostgresRepository) Create(ctx context.Context, u *models.Upload) error {
	md, err := json.Marshal(u.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `INSERT INTO uploads (id, owner, metadata, clinical_history, total_files, total_bytes, chunk_size, state, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.ExecContext(ctx, query,
		u.ID, u.Owner, md, u.ClinicalHistory, u.TotalFiles, u.TotalBytes, u.ChunkSize, u.State, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Upload, error) {
	query := `SELECT id, owner, metadata, clinical_history, total_files, total_bytes, chunk_size, state, created_at, completed_at
	          FROM uploads WHERE id = $1`

	var row uploadRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	u := &models.Upload{
		ID:              row.ID,
		Owner:           row.Owner,
		ClinicalHistory: row.ClinicalHistory,
		TotalFiles:      row.TotalFiles,
		TotalBytes:      row.TotalBytes,
		ChunkSize:       row.ChunkSize,
		State:           row.State,
		CreatedAt:       row.CreatedAt,
	}
	if row.CompletedAt.Valid {
		u.CompletedAt = row.CompletedAt.Time
	}
	if err := json.Unmarshal(row.Metadata, &u.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) MarkComplete(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET state = $2, completed_at = $3 WHERE id = $1 AND state <> $2`,
		id, protocol.StateComplete, at)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresRepository) AddChunk(ctx context.Context, uploadID string, c models.ChunkRef) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO upload_chunks (upload_id, file_id, chunk_index, size) VALUES ($1, $2, $3, $4)
		 ON CONFLICT DO NOTHING`,
		uploadID, c.FileID, c.Index, c.Size)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SetFileTotal(ctx context.Context, uploadID, fileID string, totalChunks int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO upload_files (upload_id, file_id, total_chunks) VALUES ($1, $2, $3)
		 ON CONFLICT (upload_id, file_id) DO UPDATE SET total_chunks = EXCLUDED.total_chunks`,
		uploadID, fileID, totalChunks)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Chunks(ctx context.Context, uploadID string) ([]models.ChunkRef, error) {
	var rows []struct {
		FileID string `db:"file_id"`
		Index  int    `db:"chunk_index"`
		Size   int64  `db:"size"`
	}
	err := sqlx.SelectContext(ctx, r.db, &rows,
		`SELECT file_id, chunk_index, size FROM upload_chunks WHERE upload_id = $1 ORDER BY file_id, chunk_index`,
		uploadID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out := make([]models.ChunkRef, len(rows))
	for i, row := range rows {
		out[i] = models.ChunkRef{FileID: row.FileID, Index: row.Index, Size: row.Size}
	}
	return out, nil
}

func (r *PostgresRepository) FileTotals(ctx context.Context, uploadID string) ([]models.FileTotal, error) {
	var rows []struct {
		FileID string `db:"file_id"`
		Total  int    `db:"total_chunks"`
	}
	err := sqlx.SelectContext(ctx, r.db, &rows,
		`SELECT file_id, total_chunks FROM upload_files WHERE upload_id = $1 ORDER BY file_id`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	out := make([]models.FileTotal, len(rows))
	for i, row := range rows {
		out[i] = models.FileTotal{FileID: row.FileID, TotalChunks: row.Total}
	}
	return out, nil
}

func (r *PostgresRepository) DeleteIncompleteBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, r.db, &ids,
		`DELETE FROM uploads WHERE state <> $1 AND created_at < $2 RETURNING id`,
		protocol.StateComplete, cutoff)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}
