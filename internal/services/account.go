package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ledgerlink/accounts/types"
	"github.com/sirupsen/logrus"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, in types.NewUser) (types.User, error)
	FindByID(ctx context.Context, id string) (types.User, error)
	FindByEmail(ctx context.Context, email string) (types.User, error)
	Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]types.User, error)
}

// PasswordCodec hashes and verifies passwords.
type PasswordCodec interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
}

// TokenService issues and verifies identity tokens.
type TokenService interface {
	Issue(userID string) (string, error)
	Verify(token string) (string, error)
}

// RegisterInput is the payload accepted by Register.
type RegisterInput struct {
	Email               string  `json:"email" validate:"required,email"`
	Password            string  `json:"password" validate:"required"`
	ExternalAccountID   *string `json:"externalAccountId,omitempty"`
	ExternalAccountCode *string `json:"externalAccountCode,omitempty"`
	ExternalReauthToken *string `json:"externalReauthToken,omitempty"`
}

// patchRules holds the format checks applied to a UserPatch before writing.
type patchRules struct {
	Email *string `json:"email" validate:"omitempty,email"`
}

// AuthResult pairs a user record with a freshly issued token.
type AuthResult struct {
	User  types.User
	Token string
}

// AccountService encapsulates account use-cases.
type AccountService struct {
	users        UserRepository
	passwords    PasswordCodec
	tokens       TokenService
	logger       *logrus.Logger
	events       EventPublisher
	eventChannel string
	exports      ObjectStore
	admins       map[string]struct{}
	now          func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

// Option customizes an AccountService.
type Option func(*AccountService)

// WithEvents publishes account lifecycle events to channel.
func WithEvents(publisher EventPublisher, channel string) Option {
	return func(s *AccountService) {
		s.events = publisher
		s.eventChannel = channel
	}
}

// WithExports enables ExportUsers against the given object store.
func WithExports(store ObjectStore) Option {
	return func(s *AccountService) {
		s.exports = store
	}
}

// WithAdminEmails marks the accounts with these emails as administrators.
func WithAdminEmails(emails []string) Option {
	return func(s *AccountService) {
		for _, email := range emails {
			if email = strings.TrimSpace(email); email != "" {
				s.admins[email] = struct{}{}
			}
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *AccountService) {
		s.now = now
	}
}

func NewAccountService(users UserRepository, passwords PasswordCodec, tokens TokenService, logger *logrus.Logger, opts ...Option) *AccountService {
	s := &AccountService{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger,
		admins:    make(map[string]struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a new account and returns it with a token.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.Create(ctx, types.NewUser{
		Email:               in.Email,
		Password:            in.Password,
		ExternalAccountID:   in.ExternalAccountID,
		ExternalAccountCode: in.ExternalAccountCode,
		ExternalReauthToken: in.ExternalReauthToken,
	})
	if err != nil {
		return AuthResult{}, err
	}

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.logger.WithField("user_id", user.ID).Info("user registered")
	s.publish(ctx, EventUserRegistered, user)
	return AuthResult{User: user, Token: tok}, nil
}

// Login verifies credentials and returns the account with a token. Unknown
// emails and wrong passwords fail identically.
func (s *AccountService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return AuthResult{}, fmt.Errorf("find user: %w", err)
		}
		// Spend the same bcrypt work as a real comparison.
		s.passwords.Verify(password, s.decoy())
		return AuthResult{}, ErrInvalidCredentials
	}
	if !s.passwords.Verify(password, user.PasswordHash) {
		s.logger.WithField("user_id", user.ID).Debug("login rejected")
		return AuthResult{}, ErrInvalidCredentials
	}

	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{User: user, Token: tok}, nil
}

// Authenticate verifies a token and returns the user id it carries.
func (s *AccountService) Authenticate(_ context.Context, tok string) (string, error) {
	return s.tokens.Verify(tok)
}

// GetProfile returns the caller's own record. callerID must come from a
// verified token.
func (s *AccountService) GetProfile(ctx context.Context, callerID string) (types.User, error) {
	return s.users.FindByID(ctx, callerID)
}

// UpdateProfile merge-patches the caller's own record and reissues a token.
func (s *AccountService) UpdateProfile(ctx context.Context, callerID string, patch types.UserPatch) (AuthResult, error) {
	user, err := s.update(ctx, callerID, patch)
	if err != nil {
		return AuthResult{}, err
	}
	tok, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{User: user, Token: tok}, nil
}

// IsAdmin reports whether callerID belongs to a configured administrator.
func (s *AccountService) IsAdmin(ctx context.Context, callerID string) (bool, error) {
	if len(s.admins) == 0 {
		return false, nil
	}
	user, err := s.users.FindByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	_, ok := s.admins[user.Email]
	return ok, nil
}

func (s *AccountService) AdminListUsers(ctx context.Context) ([]types.User, error) {
	return s.users.ListAll(ctx)
}

func (s *AccountService) AdminGetUser(ctx context.Context, id string) (types.User, error) {
	return s.users.FindByID(ctx, id)
}

// AdminUpdateUser merge-patches any user without issuing a token.
func (s *AccountService) AdminUpdateUser(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	return s.update(ctx, id, patch)
}

// AdminDeleteUser permanently removes a user.
func (s *AccountService) AdminDeleteUser(ctx context.Context, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("user_id", id).Info("user deleted")
	s.publish(ctx, EventUserDeleted, user)
	return nil
}

func (s *AccountService) update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		patch.Email = &email
	}
	if err := validateStruct(patchRules{Email: patch.Email}); err != nil {
		return types.User{}, err
	}
	user, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return types.User{}, err
	}
	if !patch.IsEmpty() || (patch.Password != nil && *patch.Password != "") {
		s.publish(ctx, EventUserUpdated, user)
	}
	return user, nil
}

// decoy returns a hash to compare against when the email is unknown.
func (s *AccountService) decoy() string {
	s.decoyOnce.Do(func() {
		hashed, err := s.passwords.Hash("decoy-password-for-unknown-accounts")
		if err != nil {
			s.logger.WithError(err).Warn("decoy hash unavailable")
			return
		}
		s.decoyHash = hashed
	})
	return s.decoyHash
}
