package service

import (
	"errors"

	"messagely/internal/auth"
)

// Errors returned by the core. The dispatcher maps them to status codes with errors.Is.
var (
	ErrMissingField       = errors.New("missing required field")
	ErrSecretTooLong      = errors.New("password too long")
	ErrDuplicateUsername  = errors.New("username taken")
	ErrInvalidCredentials = errors.New("invalid username/password")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrHashing            = auth.ErrHashing
)

// MissingFieldError names the first required field that was empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string { return "missing required field: " + e.Field }

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }
