package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ledgerlink/accounts/internal/services"
	"github.com/ledgerlink/accounts/types"
	"github.com/sirupsen/logrus"
)

// AccountService is the set of account operations served over HTTP.
type AccountService interface {
	Authenticator
	AdminChecker
	Register(ctx context.Context, in services.RegisterInput) (services.AuthResult, error)
	Login(ctx context.Context, email, password string) (services.AuthResult, error)
	GetProfile(ctx context.Context, callerID string) (types.User, error)
	UpdateProfile(ctx context.Context, callerID string, patch types.UserPatch) (services.AuthResult, error)
	AdminListUsers(ctx context.Context) ([]types.User, error)
	AdminGetUser(ctx context.Context, id string) (types.User, error)
	AdminUpdateUser(ctx context.Context, id string, patch types.UserPatch) (types.User, error)
	AdminDeleteUser(ctx context.Context, id string) error
	ExportUsers(ctx context.Context) (services.ExportResult, error)
	OpenExport(ctx context.Context, name string) (io.ReadCloser, error)
	DeleteExport(ctx context.Context, name string) error
}

// UserHandler provides HTTP handlers for user accounts.
type UserHandler struct {
	accounts AccountService
	logger   *logrus.Logger
}

// NewUserHandler constructs a handler over the account service.
func NewUserHandler(accounts AccountService, logger *logrus.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, logger: logger}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, accounts AccountService, logger *logrus.Logger) {
	handler := NewUserHandler(accounts, logger)
	authenticated := RequireAuth(accounts)
	admin := RequireAdmin(accounts, logger)

	r.Post("/", handler.Register)
	r.Post("/login", handler.Login)

	r.Group(func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/profile", handler.GetProfile)
		r.Put("/profile", handler.UpdateProfile)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Get("/", handler.ListUsers)
			r.Post("/export", handler.ExportUsers)
			r.Get("/exports/{name}", handler.DownloadExport)
			r.Delete("/exports/{name}", handler.DeleteExport)
			r.Get("/{userID}", handler.GetUser)
			r.Put("/{userID}", handler.UpdateUser)
			r.Delete("/{userID}", handler.DeleteUser)
		})
	})
}

// AuthResponse is a user record with a freshly issued token.
type AuthResponse struct {
	types.User
	Token string `json:"token"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{User: res.User, Token: res.Token})
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{User: res.User, Token: res.Token})
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	callerID, err := callerIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authorized, no token")
		return
	}

	user, err := h.accounts.GetProfile(r.Context(), callerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	callerID, err := callerIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authorized, no token")
		return
	}

	var patch types.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.accounts.UpdateProfile(r.Context(), callerID, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{User: res.User, Token: res.Token})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.AdminListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.AdminGetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch types.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	user, err := h.accounts.AdminUpdateUser(r.Context(), chi.URLParam(r, "userID"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.AdminDeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "user removed"})
}

func (h *UserHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.ExportUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// DownloadExport streams a stored export back to the admin.
func (h *UserHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rc, err := h.accounts.OpenExport(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WithError(err).WithField("export", name).Warn("export download interrupted")
	}
}

func (h *UserHandler) DeleteExport(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteExport(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "export removed"})
}

// fail writes the mapped error response. Server-side failures are logged
// with the underlying cause, which is never sent to the client.
func (h *UserHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	writeError(w, status, message)
}
