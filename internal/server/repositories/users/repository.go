// Package users stores accounts allowed to open upload sessions.
package users

import (
	"context"

	"github.com/dmitrijs2005/relaypacs/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrNotFound for an unknown user.
	Get(ctx context.Context, username string) (*models.User, error)
	// Upsert creates the user or replaces its password hash.
	Upsert(ctx context.Context, u *models.User) error
}
