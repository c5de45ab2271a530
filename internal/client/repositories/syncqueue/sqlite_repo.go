package syncqueue

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

const selectColumns = `SELECT id, action, payload, created_at, attempts, last_attempt, last_error, status FROM sync_queue`

type itemRow struct {
	ID          int64          `db:"id"`
	Action      string         `db:"action"`
	Payload     []byte         `db:"payload"`
	CreatedAt   int64          `db:"created_at"`
	Attempts    int            `db:"attempts"`
	LastAttempt sql.NullInt64  `db:"last_attempt"`
	LastError   sql.NullString `db:"last_error"`
	Status      string         `db:"status"`
}

func (r itemRow) toModel() *models.SyncQueueItem {
	return &models.SyncQueueItem{
		ID:          r.ID,
		Action:      models.SyncAction(r.Action),
		Payload:     r.Payload,
		CreatedAt:   dbx.FromMillis(r.CreatedAt),
		Attempts:    r.Attempts,
		LastAttempt: dbx.FromNullMillis(r.LastAttempt),
		LastError:   r.LastError.String,
		Status:      models.SyncStatus(r.Status),
	}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, action models.SyncAction, payload []byte, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_queue (action, payload, created_at, status) VALUES (?, ?, ?, ?)`,
		string(action), payload, dbx.Millis(at), string(models.SyncPending))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", action, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue item id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) FindPending(ctx context.Context, action models.SyncAction, payload []byte) (*models.SyncQueueItem, error) {
	var row itemRow
	err := sqlx.GetContext(ctx, r.db, &row,
		selectColumns+` WHERE status = ? AND action = ? AND payload = ? ORDER BY id LIMIT 1`,
		string(models.SyncPending), string(action), payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find queue item: %w", err)
	}
	return row.toModel(), nil
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, status models.SyncStatus, action models.SyncAction) ([]*models.SyncQueueItem, error) {
	var rows []itemRow
	err := sqlx.SelectContext(ctx, r.db, &rows,
		selectColumns+` WHERE status = ? AND action = ? ORDER BY id`, string(status), string(action))
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	out := make([]*models.SyncQueueItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

func (r *SQLiteRepository) RecordAttempt(ctx context.Context, id int64, status models.SyncStatus, lastErr string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET attempts = attempts + 1, status = ?, last_error = ?, last_attempt = ? WHERE id = ?`,
		string(status), sql.NullString{String: lastErr, Valid: lastErr != ""}, dbx.Millis(at), id)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE status = ? AND COALESCE(last_attempt, created_at) < ?`,
		string(models.SyncCompleted), dbx.Millis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
