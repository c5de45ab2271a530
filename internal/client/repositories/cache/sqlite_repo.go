package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/dbx"
	"github.com/jmoiron/sqlx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type cacheRow struct {
	ID           int64  `db:"id"`
	ResourceURL  string `db:"resource_url"`
	CacheKey     string `db:"cache_key"`
	Size         int64  `db:"size"`
	Payload      []byte `db:"payload"`
	LastAccessed int64  `db:"last_accessed"`
	Priority     int    `db:"priority"`
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) (*models.CacheMetadata, error) {
	var row cacheRow
	err := sqlx.GetContext(ctx, r.db, &row,
		`SELECT id, resource_url, cache_key, size, payload, last_accessed, priority FROM cache_metadata WHERE cache_key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache[%s]: %w", key, err)
	}
	return &models.CacheMetadata{
		ID:           row.ID,
		ResourceURL:  row.ResourceURL,
		CacheKey:     row.CacheKey,
		Size:         row.Size,
		Payload:      row.Payload,
		LastAccessed: dbx.FromMillis(row.LastAccessed),
		Priority:     row.Priority,
	}, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, m *models.CacheMetadata) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cache_metadata (resource_url, cache_key, size, payload, last_accessed, priority)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			resource_url = excluded.resource_url,
			size = excluded.size,
			payload = excluded.payload,
			last_accessed = excluded.last_accessed,
			priority = excluded.priority
	`, m.ResourceURL, m.CacheKey, int64(len(m.Payload)), m.Payload, dbx.Millis(m.LastAccessed), m.Priority)
	if err != nil {
		return fmt.Errorf("failed to set cache[%s]: %w", m.CacheKey, err)
	}
	return nil
}

func (r *SQLiteRepository) Touch(ctx context.Context, key string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE cache_metadata SET last_accessed = ? WHERE cache_key = ?`, dbx.Millis(at), key)
	if err != nil {
		return fmt.Errorf("failed to touch cache[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cache_metadata WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM cache_metadata`); err != nil {
		return 0, fmt.Errorf("failed to count cache: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) EvictLRU(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cache_metadata WHERE id IN (
			SELECT id FROM cache_metadata
			ORDER BY last_accessed DESC, priority DESC, id DESC
			LIMIT -1 OFFSET ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to evict cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
