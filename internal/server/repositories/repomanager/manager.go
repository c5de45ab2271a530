// Package repomanager vends the server's repositories from one backend:
// process memory, or PostgreSQL through pgx with goose migrations.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/relaypacs/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/relaypacs/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Uploads() uploads.Repository
	Users() users.Repository
	Close() error
}

type InMemoryRepositoryManager struct {
	uploads *uploads.MemoryRepository
	users   *users.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		uploads: uploads.NewMemoryRepository(),
		users:   users.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *InMemoryRepositoryManager) Uploads() uploads.Repository         { return m.uploads }
func (m *InMemoryRepositoryManager) Users() users.Repository             { return m.users }
func (m *InMemoryRepositoryManager) Close() error                        { return nil }
