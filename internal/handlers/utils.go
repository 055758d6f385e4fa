package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ledgerlink/accounts/internal/services"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

func withCallerID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextSubjectKey, userID)
}

func callerIDFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok {
		return "", errors.New("missing subject")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("invalid subject")
	}
	return subject, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", services.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed request body", services.ErrInvalidInput)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// errorStatus maps a service error to its HTTP status and client message.
// Unrecognized errors become a generic 500 so internals are not leaked.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrDuplicateEmail):
		return http.StatusBadRequest, "user already exists"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, services.ErrInvalidToken):
		return http.StatusUnauthorized, "not authorized, token failed"
	case errors.Is(err, services.ErrExportNotFound):
		return http.StatusNotFound, "export not found"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, services.ErrExportsDisabled):
		return http.StatusServiceUnavailable, "exports are not configured"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
