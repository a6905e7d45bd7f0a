package domain

import "errors"

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("username or email already registered")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrForbidden        = errors.New("admin role required")
	ErrEmptyContent     = errors.New("content must not be empty")
	ErrInvalidStatus    = errors.New("invalid question status")
	ErrBadCredentials   = errors.New("incorrect username or password")
	ErrMissingField     = errors.New("username, email and password are required")
)
