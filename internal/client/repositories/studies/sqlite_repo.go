package studies

import (
	"context"
	"database/sql"
	"encoding/json"
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

const selectColumns = `SELECT id, upload_id, upload_token, status, metadata, total_files, total_size,
	created_at, progress, chunk_size, expires_at, last_sync_attempt FROM studies`

type studyRow struct {
	ID              int64          `db:"id"`
	UploadID        sql.NullString `db:"upload_id"`
	UploadToken     sql.NullString `db:"upload_token"`
	Status          string         `db:"status"`
	Metadata        string         `db:"metadata"`
	TotalFiles      int            `db:"total_files"`
	TotalSize       int64          `db:"total_size"`
	CreatedAt       int64          `db:"created_at"`
	Progress        float64        `db:"progress"`
	ChunkSize       sql.NullInt64  `db:"chunk_size"`
	ExpiresAt       sql.NullInt64  `db:"expires_at"`
	LastSyncAttempt sql.NullInt64  `db:"last_sync_attempt"`
}

func (r studyRow) toModel() (*models.Study, error) {
	s := &models.Study{
		ID:              r.ID,
		UploadID:        r.UploadID.String,
		UploadToken:     r.UploadToken.String,
		Status:          models.StudyStatus(r.Status),
		TotalFiles:      r.TotalFiles,
		TotalSize:       r.TotalSize,
		Progress:        r.Progress,
		CreatedAt:       dbx.FromMillis(r.CreatedAt),
		ChunkSize:       r.ChunkSize.Int64,
		ExpiresAt:       dbx.FromNullMillis(r.ExpiresAt),
		LastSyncAttempt: dbx.FromNullMillis(r.LastSyncAttempt),
	}
	if err := json.Unmarshal([]byte(r.Metadata), &s.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of study %d: %w", r.ID, err)
	}
	return s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func statusStrings(statuses []models.StudyStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *SQLiteRepository) Create(ctx context.Context, s *models.Study) (int64, error) {
	md, err := json.Marshal(s.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}

	query := `INSERT INTO studies (upload_id, upload_token, status, metadata, total_files, total_size, created_at, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query,
		nullString(s.UploadID), nullString(s.UploadToken), string(s.Status), string(md),
		s.TotalFiles, s.TotalSize, dbx.Millis(s.CreatedAt), s.Progress)
	if err != nil {
		return 0, fmt.Errorf("failed to insert study: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get study id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*models.Study, error) {
	var row studyRow
	err := sqlx.GetContext(ctx, r.db, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study: %w", err)
	}
	return row.toModel()
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.Study, error) {
	return r.getOne(ctx, selectColumns+` WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetByUploadID(ctx context.Context, uploadID string) (*models.Study, error) {
	return r.getOne(ctx, selectColumns+` WHERE upload_id = ?`, uploadID)
}

func (r *SQLiteRepository) selectMany(ctx context.Context, query string, args ...any) ([]*models.Study, error) {
	var rows []studyRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}

	result := make([]*models.Study, 0, len(rows))
	for _, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

func (r *SQLiteRepository) List(ctx context.Context, statuses ...models.StudyStatus) ([]*models.Study, error) {
	if len(statuses) == 0 {
		return r.selectMany(ctx, selectColumns+` ORDER BY id`)
	}
	query, args, err := sqlx.In(selectColumns+` WHERE status IN (?) ORDER BY id`, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return r.selectMany(ctx, r.db.Rebind(query), args...)
}

func (r *SQLiteRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time, statuses ...models.StudyStatus) ([]*models.Study, error) {
	if len(statuses) == 0 {
		return r.selectMany(ctx, selectColumns+` WHERE created_at < ? ORDER BY id`, dbx.Millis(cutoff))
	}
	query, args, err := sqlx.In(selectColumns+` WHERE created_at < ? AND status IN (?) ORDER BY id`,
		dbx.Millis(cutoff), statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	return r.selectMany(ctx, r.db.Rebind(query), args...)
}

// exec runs an UPDATE/DELETE addressed by study id and reports ErrNotFound
// when no row matched.
func (r *SQLiteRepository) exec(ctx context.Context, what string, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
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

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id int64, status models.StudyStatus) error {
	return r.exec(ctx, "update study status", `UPDATE studies SET status = ? WHERE id = ?`, string(status), id)
}

func (r *SQLiteRepository) UpdateMetadata(ctx context.Context, id int64, md models.StudyMetadata) error {
	b, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return r.exec(ctx, "update study metadata", `UPDATE studies SET metadata = ? WHERE id = ?`, string(b), id)
}

func (r *SQLiteRepository) SaveSession(ctx context.Context, id int64, sess models.Session, status models.StudyStatus) error {
	return r.exec(ctx, "save session",
		`UPDATE studies SET upload_id = ?, upload_token = ?, chunk_size = ?, expires_at = ?, status = ? WHERE id = ?`,
		sess.UploadID, sess.Token, sess.ChunkSize, dbx.NullMillis(sess.ExpiresAt), string(status), id)
}

func (r *SQLiteRepository) UpdateToken(ctx context.Context, id int64, token string, expiresAt time.Time) error {
	return r.exec(ctx, "update token",
		`UPDATE studies SET upload_token = ?, expires_at = ? WHERE id = ?`,
		token, dbx.NullMillis(expiresAt), id)
}

func (r *SQLiteRepository) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	return r.exec(ctx, "update progress", `UPDATE studies SET progress = ? WHERE id = ?`, progress, id)
}

func (r *SQLiteRepository) AddTotals(ctx context.Context, id int64, files int, size int64) error {
	return r.exec(ctx, "update totals",
		`UPDATE studies SET total_files = total_files + ?, total_size = total_size + ? WHERE id = ?`,
		files, size, id)
}

func (r *SQLiteRepository) TouchSyncAttempt(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "update last sync attempt",
		`UPDATE studies SET last_sync_attempt = ? WHERE id = ?`, dbx.Millis(at), id)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "delete study", `DELETE FROM studies WHERE id = ?`, id)
}
