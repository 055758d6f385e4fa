package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Authenticator resolves a bearer token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AdminChecker reports whether a user may call admin endpoints.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAuth enforces bearer authentication and injects the caller id into
// the request context.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authorized, no token")
				return
			}

			userID, err := auth.Authenticate(r.Context(), tokenString)
			if err != nil {
				status, message := errorStatus(err)
				writeError(w, status, message)
				return
			}

			next.ServeHTTP(w, r.WithContext(withCallerID(r.Context(), userID)))
		})
	}
}

// RequireAdmin rejects callers that are not administrators. It must run after
// RequireAuth.
func RequireAdmin(admins AdminChecker, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := callerIDFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "not authorized, no token")
				return
			}

			ok, err := admins.IsAdmin(r.Context(), userID)
			if err != nil {
				logger.WithError(err).WithField("user_id", userID).Error("admin check failed")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "not authorized as an admin")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
