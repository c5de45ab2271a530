package users

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/server/models"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(sqlx.NewDb(db, "pgx")), mock
}

func TestMemory_GetUpsert(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Get(ctx, "alice")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, r.Upsert(ctx, &models.User{UserName: "alice", PasswordHash: "h1"}))
	require.NoError(t, r.Upsert(ctx, &models.User{UserName: "alice", PasswordHash: "h2"}))

	u, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h2", u.PasswordHash)
}

func TestPostgres_Get(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^SELECT\s+username,\s*password_hash,\s*created_at\s+FROM\s+users\s+WHERE\s+username\s*=\s*\$1\s*$`

	now := time.Now()
	mock.ExpectQuery(q).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "created_at"}).AddRow("alice", "hash", now))
	mock.ExpectQuery(q).WithArgs("bob").
		WillReturnRows(sqlmock.NewRows([]string{"username", "password_hash", "created_at"}))

	u, err := repo.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)

	_, err = repo.Get(context.Background(), "bob")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgres_Upsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	q := `(?s)^INSERT\s+INTO\s+users.*ON\s+CONFLICT`

	mock.ExpectExec(q).WithArgs("alice", "hash").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("bob", "hash").WillReturnError(errors.New("db down"))

	require.NoError(t, repo.Upsert(context.Background(), &models.User{UserName: "alice", PasswordHash: "hash"}))

	err := repo.Upsert(context.Background(), &models.User{UserName: "bob", PasswordHash: "hash"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
