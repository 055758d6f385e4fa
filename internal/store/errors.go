package store

import (
	"errors"

	"github.com/ledgerlink/accounts/internal/credential"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when a write would give two users the same email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidInput is returned for writes missing a required field.
	ErrInvalidInput = credential.ErrInvalidInput
)
