package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/relaypacs/internal/client/models"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/dbx"
	"github.com/jmoiron/sqlx"
)

var (
	ErrContentPurged = errors.New("file content purged")
	ErrShortRead     = errors.New("stored content shorter than requested range")
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `SELECT id, study_id, file_name, file_type, size, content IS NULL AS purged FROM files`

type fileRow struct {
	ID       int64  `db:"id"`
	StudyID  int64  `db:"study_id"`
	FileName string `db:"file_name"`
	FileType string `db:"file_type"`
	Size     int64  `db:"size"`
	Purged   bool   `db:"purged"`
}

func (r fileRow) toModel() *models.FileRecord {
	return &models.FileRecord{
		ID:       r.ID,
		StudyID:  r.StudyID,
		FileName: r.FileName,
		FileType: r.FileType,
		Size:     r.Size,
		Purged:   r.Purged,
	}
}

func (r *SQLiteRepository) Create(ctx context.Context, f *models.FileRecord, content []byte) (int64, error) {
	if int64(len(content)) != f.Size {
		return 0, fmt.Errorf("content length %d does not match size %d", len(content), f.Size)
	}
	if content == nil {
		content = []byte{}
	}

	query := `INSERT INTO files (study_id, file_name, file_type, size, content) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, f.StudyID, f.FileName, f.FileType, f.Size, content)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get file id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*models.FileRecord, error) {
	var row fileRow
	err := sqlx.GetContext(ctx, r.db, &row, selectColumns+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return row.toModel(), nil
}

func (r *SQLiteRepository) ListByStudy(ctx context.Context, studyID int64) ([]*models.FileRecord, error) {
	var rows []fileRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, selectColumns+` WHERE study_id = ? ORDER BY id`, studyID); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	result := make([]*models.FileRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toModel())
	}
	return result, nil
}

func (r *SQLiteRepository) ReadRange(ctx context.Context, id int64, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range offset=%d length=%d", offset, length)
	}

	var row struct {
		Purged bool   `db:"purged"`
		Data   []byte `db:"data"`
	}
	// substr is 1-based and works on BLOBs byte-wise.
	query := `SELECT content IS NULL AS purged, substr(content, ?, ?) AS data FROM files WHERE id = ?`
	err := sqlx.GetContext(ctx, r.db, &row, query, offset+1, length, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file range: %w", err)
	}
	if row.Purged {
		return nil, ErrContentPurged
	}
	if int64(len(row.Data)) != length {
		return nil, fmt.Errorf("%w: file %d got %d of %d bytes at %d", ErrShortRead, id, len(row.Data), length, offset)
	}
	return row.Data, nil
}

func (r *SQLiteRepository) PurgeContent(ctx context.Context, studyID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE files SET content = NULL WHERE study_id = ? AND content IS NOT NULL`, studyID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) StagedBytes(ctx context.Context) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COALESCE(SUM(LENGTH(content)), 0) FROM files`); err != nil {
		return 0, fmt.Errorf("failed to sum staged bytes: %w", err)
	}
	return n, nil
}
