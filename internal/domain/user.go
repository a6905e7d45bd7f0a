package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleGuest Role = "guest"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// Actor is the authenticated caller of an operation. A nil *Actor is anonymous.
type Actor struct {
	UserID   int64
	Username string
	Role     Role
}

func (a *Actor) Authenticated() bool {
	return a != nil
}

func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

type UserRepository interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// UpsertAdmin creates the user with RoleAdmin, or promotes an existing user
	// with that username and resets its password hash.
	UpsertAdmin(ctx context.Context, username, email, passwordHash string) (*User, error)
}
