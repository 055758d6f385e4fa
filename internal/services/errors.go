package services

import (
	"errors"

	"github.com/ledgerlink/accounts/internal/credential"
	"github.com/ledgerlink/accounts/internal/storage"
	"github.com/ledgerlink/accounts/internal/store"
	"github.com/ledgerlink/accounts/internal/token"
)

// Failures reported by AccountService. Callers match them with errors.Is.
var (
	ErrDuplicateEmail = store.ErrDuplicateEmail
	ErrNotFound       = store.ErrNotFound
	ErrInvalidInput   = credential.ErrInvalidInput
	ErrInvalidToken   = token.ErrInvalidToken

	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrExportsDisabled is returned by ExportUsers when no object storage is configured.
	ErrExportsDisabled = errors.New("user exports are not configured")

	// ErrExportNotFound is returned when a named export does not exist.
	ErrExportNotFound = storage.ErrObjectNotFound
)
