package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerlink/accounts/types"
)

// Backend defines the raw persistence operations a user store provides.
// Implementations assign ids on Insert, enforce email uniqueness, and apply
// Update patches atomically. They never see plaintext passwords.
type Backend interface {
	Insert(ctx context.Context, user types.User) (types.User, error)
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]types.User, error)
}

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// UserRepository wraps a Backend with the user invariants: required
// fields, defaults for optional fields, and password hashing on write.
type UserRepository struct {
	backend  Backend
	hasher   PasswordHasher
	defaults types.UserDefaults
}

// NewUserRepository constructs a repository over backend.
func NewUserRepository(backend Backend, hasher PasswordHasher, defaults types.UserDefaults) *UserRepository {
	return &UserRepository{
		backend:  backend,
		hasher:   hasher,
		defaults: defaults,
	}
}

// Create hashes the password, applies defaults and inserts the user.
func (r *UserRepository) Create(ctx context.Context, in types.NewUser) (types.User, error) {
	if strings.TrimSpace(in.Email) == "" {
		return types.User{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	hashed, err := r.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, err
	}

	user := r.defaults.Build(in)
	user.PasswordHash = hashed
	return r.backend.Insert(ctx, user)
}

// FindByID returns the user with the given id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (types.User, error) {
	return r.backend.GetByID(ctx, id)
}

// FindByEmail returns the user whose email matches exactly.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (types.User, error) {
	return r.backend.GetByEmail(ctx, email)
}

// Update merge-patches the user. A non-empty Password is re-hashed; an
// empty patch returns the stored record untouched.
func (r *UserRepository) Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	patch.PasswordHash = nil
	if patch.Email != nil && strings.TrimSpace(*patch.Email) == "" {
		return types.User{}, fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
	}
	if patch.Password != nil && *patch.Password != "" {
		hashed, err := r.hasher.Hash(*patch.Password)
		if err != nil {
			return types.User{}, err
		}
		patch.PasswordHash = &hashed
	}

	if patch.IsEmpty() {
		return r.backend.GetByID(ctx, id)
	}
	return r.backend.Update(ctx, id, patch)
}

// Delete removes the user permanently.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.backend.Delete(ctx, id)
}

// ListAll returns every user ordered by creation time.
func (r *UserRepository) ListAll(ctx context.Context) ([]types.User, error) {
	return r.backend.List(ctx)
}
