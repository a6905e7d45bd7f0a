package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pscheid92/qapulse/internal/domain"
	"github.com/pscheid92/qapulse/internal/platform/auth"
)

const MinAdminPasswordLength = 8

type AdminUpserter interface {
	UpsertAdmin(ctx context.Context, username, email, passwordHash string) (*domain.User, error)
}

// SeedAdmin creates the admin account, or promotes an existing account with
// that username and resets its password.
func SeedAdmin(ctx context.Context, users AdminUpserter, username, email, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return nil, errors.New("username and email are required")
	}
	if len(password) < MinAdminPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", MinAdminPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := users.UpsertAdmin(ctx, username, email, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert admin %q: %w", username, err)
	}
	return user, nil
}
