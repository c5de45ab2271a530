package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/relaypacs/internal/common"
	"github.com/dmitrijs2005/relaypacs/internal/cryptox"
	"github.com/dmitrijs2005/relaypacs/internal/server/auth"
	"github.com/dmitrijs2005/relaypacs/internal/server/models"
	"github.com/dmitrijs2005/relaypacs/internal/server/repositories/repomanager"
)

type UserService struct {
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
}

func NewUserService(m repomanager.RepositoryManager, issuer *auth.Issuer) *UserService {
	return &UserService{repomanager: m, issuer: issuer}
}

// Login checks the password and returns an access token.
func (s *UserService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repomanager.Users().Get(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("error loading user: %w", err)
	}

	ok, err := cryptox.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return "", ErrUnauthorized
	}

	token, _, err := s.issuer.AccessToken(user.UserName)
	if err != nil {
		return "", fmt.Errorf("error signing access token: %w", err)
	}
	return token, nil
}

// Seed upserts accounts given as "name:password" pairs.
func (s *UserService) Seed(ctx context.Context, pairs []string) error {
	repo := s.repomanager.Users()
	for _, p := range pairs {
		name, password, ok := strings.Cut(p, ":")
		if !ok || name == "" || password == "" {
			return fmt.Errorf("bad user entry %q, want name:password", p)
		}
		u := &models.User{UserName: name, PasswordHash: cryptox.HashPassword(password)}
		if err := repo.Upsert(ctx, u); err != nil {
			return fmt.Errorf("error seeding user %s: %w", name, err)
		}
	}
	return nil
}
