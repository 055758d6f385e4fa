package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ledgerlink/accounts/internal/credential"
	"github.com/ledgerlink/accounts/internal/logging"
	"github.com/ledgerlink/accounts/internal/storage"
	"github.com/ledgerlink/accounts/internal/store"
	"github.com/ledgerlink/accounts/internal/token"
	"github.com/ledgerlink/accounts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-that-is-long-enough-for-testing"

type publishedEvent struct {
	channel string
	event   AccountEvent
	attrs   map[string]string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	var event AccountEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	p.events = append(p.events, publishedEvent{channel: channel, event: event, attrs: attrs})
	return "msg-1", nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}

type memoryObjectStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjectStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjectStore) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func (m *memoryObjectStore) Bucket() string { return "exports-bucket" }

type fixture struct {
	svc       *AccountService
	repo      *store.UserRepository
	codec     *credential.Codec
	tokens    *token.Service
	publisher *recordingPublisher
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	codec := credential.NewCodec(bcrypt.MinCost)
	repo := store.NewUserRepository(store.NewMemoryUserBackend(), codec, types.DefaultUserDefaults())
	tokens, err := token.NewService(testSecret)
	require.NoError(t, err)
	publisher := &recordingPublisher{}

	opts = append([]Option{WithEvents(publisher, "account-events")}, opts...)
	svc := NewAccountService(repo, codec, tokens, logging.Discard(), opts...)
	return fixture{svc: svc, repo: repo, codec: codec, tokens: tokens, publisher: publisher}
}

func strPtr(s string) *string { return &s }

func (f fixture) register(t *testing.T, email, password string) AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: password})
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.Register(ctx, RegisterInput{
		Email:               " a@x.com ",
		Password:            "secret1",
		ExternalAccountID:   strPtr("ext-1"),
		ExternalReauthToken: strPtr("reauth-1"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "a@x.com", res.User.Email)
	assert.Equal(t, "ext-1", res.User.ExternalAccountID)
	assert.Equal(t, "reauth-1", res.User.ExternalReauthToken)
	assert.Empty(t, res.User.ExternalAccountCode)
	assert.False(t, res.User.ExternalAccountLinked)

	userID, err := f.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	stored, err := f.repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.True(t, f.codec.Verify("secret1", stored.PasswordHash))

	require.Len(t, f.publisher.events, 1)
	got := f.publisher.events[0]
	assert.Equal(t, "account-events", got.channel)
	assert.Equal(t, EventUserRegistered, got.event.Type)
	assert.Equal(t, res.User.ID, got.event.UserID)
	assert.Equal(t, EventUserRegistered, got.attrs["event_type"])
	assert.Equal(t, res.User.ID, got.attrs["user_id"])
}

func TestRegisterTwiceSameEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.register(t, "a@x.com", "secret1")
	_, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "another1"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	users, err := f.svc.AdminListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, []string{EventUserRegistered}, f.publisher.types())
}

func TestRegisterInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input RegisterInput
	}{
		{name: "missing email", input: RegisterInput{Password: "secret1"}},
		{name: "malformed email", input: RegisterInput{Email: "not-an-email", Password: "secret1"}},
		{name: "missing password", input: RegisterInput{Email: "a@x.com"}},
		{name: "short password", input: RegisterInput{Email: "a@x.com", Password: "12345"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			_, err := f.svc.Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)

			users, err := f.svc.AdminListUsers(context.Background())
			require.NoError(t, err)
			assert.Empty(t, users)
			assert.Empty(t, f.publisher.types())
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	registered := f.register(t, "a@x.com", "secret1")

	res, err := f.svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, res.User.ID)

	userID, err := f.svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, userID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "a@x.com", "secret1")

	_, wrongPassword := f.svc.Login(ctx, "a@x.com", "wrong-password")
	_, unknownEmail := f.svc.Login(ctx, "nobody@x.com", "secret1")
	_, emptyPassword := f.svc.Login(ctx, "a@x.com", "")
	_, caseMismatch := f.svc.Login(ctx, "A@x.com", "secret1")

	for _, err := range []error{wrongPassword, unknownEmail, emptyPassword, caseMismatch} {
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.Equal(t, ErrInvalidCredentials.Error(), err.Error())
	}
}

func TestAuthenticateRejectsForeignToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	other, err := token.NewService("some-other-secret-that-is-long-enough")
	require.NoError(t, err)
	tok, err := other.Issue("user-1")
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGetProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	registered := f.register(t, "a@x.com", "secret1")

	user, err := f.svc.GetProfile(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", user.Email)

	// A valid token for a user that no longer exists.
	require.NoError(t, f.svc.AdminDeleteUser(ctx, registered.User.ID))
	_, err = f.svc.GetProfile(ctx, registered.User.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	registered := f.register(t, "a@x.com", "secret1")

	linked := true
	res, err := f.svc.UpdateProfile(ctx, registered.User.ID, types.UserPatch{
		Password:              strPtr("newpass1"),
		ExternalAccountLinked: &linked,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.Token)
	userID, err := f.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, userID)
	assert.True(t, res.User.ExternalAccountLinked)
	assert.Equal(t, "a@x.com", res.User.Email)

	_, err = f.svc.Login(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@x.com", "newpass1")
	assert.NoError(t, err)

	assert.Equal(t, []string{EventUserRegistered, EventUserUpdated}, f.publisher.types())
}

func TestUpdateProfileEmptyPatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	registered := f.register(t, "a@x.com", "secret1")

	res, err := f.svc.UpdateProfile(ctx, registered.User.ID, types.UserPatch{})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, registered.User, res.User)
	assert.Equal(t, []string{EventUserRegistered}, f.publisher.types())
}

func TestUpdateProfileFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	first := f.register(t, "a@x.com", "secret1")
	f.register(t, "b@x.com", "secret1")

	_, err := f.svc.UpdateProfile(ctx, "missing", types.UserPatch{Email: strPtr("c@x.com")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.UpdateProfile(ctx, first.User.ID, types.UserPatch{Email: strPtr(" b@x.com ")})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = f.svc.UpdateProfile(ctx, first.User.ID, types.UserPatch{Password: strPtr("abc")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateRejectsMalformedEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	registered := f.register(t, "a@x.com", "secret1")

	_, err := f.svc.UpdateProfile(ctx, registered.User.ID, types.UserPatch{Email: strPtr("noatsign")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.AdminUpdateUser(ctx, registered.User.ID, types.UserPatch{Email: strPtr("noatsign")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	stored, err := f.svc.GetProfile(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", stored.Email)

	res, err := f.svc.UpdateProfile(ctx, registered.User.ID, types.UserPatch{Email: strPtr(" c@x.com ")})
	require.NoError(t, err)
	assert.Equal(t, "c@x.com", res.User.Email)
	assert.Equal(t, []string{EventUserRegistered, EventUserUpdated}, f.publisher.types())
}

func TestAdminOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	a := f.register(t, "a@x.com", "secret1")
	b := f.register(t, "b@x.com", "secret1")

	users, err := f.svc.AdminListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)

	got, err := f.svc.AdminGetUser(ctx, b.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", got.Email)

	_, err = f.svc.AdminGetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	code := "code-1"
	updated, err := f.svc.AdminUpdateUser(ctx, a.User.ID, types.UserPatch{ExternalAccountCode: &code})
	require.NoError(t, err)
	assert.Equal(t, "code-1", updated.ExternalAccountCode)
	assert.Equal(t, a.User.PasswordHash, updated.PasswordHash)

	_, err = f.svc.AdminUpdateUser(ctx, "missing", types.UserPatch{ExternalAccountCode: &code})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.svc.AdminDeleteUser(ctx, "missing"), ErrNotFound)
	users, err = f.svc.AdminListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, f.svc.AdminDeleteUser(ctx, b.User.ID))
	users, err = f.svc.AdminListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	assert.Equal(t,
		[]string{EventUserRegistered, EventUserRegistered, EventUserUpdated, EventUserDeleted},
		f.publisher.types())
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, WithAdminEmails([]string{" root@x.com ", ""}))
	root := f.register(t, "root@x.com", "secret1")
	plain := f.register(t, "a@x.com", "secret1")

	ok, err := f.svc.IsAdmin(ctx, root.User.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.IsAdmin(ctx, plain.User.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.IsAdmin(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	noAdmins := newFixture(t)
	ok, err = noAdmins.svc.IsAdmin(ctx, root.User.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	res, err := f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.svc.GetProfile(ctx, res.User.ID)
	assert.NoError(t, err)
}

func TestExportUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	objects := newMemoryObjectStore()
	exportedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	f := newFixture(t, WithExports(objects), WithClock(func() time.Time { return exportedAt }))
	f.register(t, "a@x.com", "secret1")
	f.register(t, "b@x.com", "secret1")

	res, err := f.svc.ExportUsers(ctx)
	require.NoError(t, err)

	assert.Equal(t, "exports-bucket", res.Bucket)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, exportedAt, res.ExportedAt)
	assert.Regexp(t, `^exports/users-20260301T093000Z-[0-9a-f]{8}\.json$`, res.Key)

	data, ok := objects.objects[res.Key]
	require.True(t, ok)
	assert.Equal(t, int64(len(data)), res.Size)
	assert.Equal(t, "application/json", objects.types[res.Key])
	assert.False(t, bytes.Contains(data, []byte("$2a$")), "export must not contain password hashes")

	var exported []map[string]any
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 2)
	assert.Equal(t, "a@x.com", exported[0]["email"])
	assert.NotContains(t, exported[0], "passwordHash")
}

func TestExportUsersFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := newFixture(t).svc.ExportUsers(ctx)
	assert.ErrorIs(t, err, ErrExportsDisabled)

	objects := newMemoryObjectStore()
	objects.err = errors.New("bucket gone")
	_, err = newFixture(t, WithExports(objects)).svc.ExportUsers(ctx)
	assert.ErrorContains(t, err, "bucket gone")
}

func TestOpenAndDeleteExport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	objects := newMemoryObjectStore()
	f := newFixture(t, WithExports(objects))
	f.register(t, "a@x.com", "secret1")

	res, err := f.svc.ExportUsers(ctx)
	require.NoError(t, err)
	name := strings.TrimPrefix(res.Key, "exports/")

	rc, err := f.svc.OpenExport(ctx, name)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, objects.objects[res.Key], data)

	require.NoError(t, f.svc.DeleteExport(ctx, name))
	assert.NotContains(t, objects.objects, res.Key)

	_, err = f.svc.OpenExport(ctx, name)
	assert.ErrorIs(t, err, ErrExportNotFound)
	assert.ErrorIs(t, f.svc.DeleteExport(ctx, name), ErrExportNotFound)
}

func TestExportNamesAreRestricted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	objects := newMemoryObjectStore()
	objects.objects["secrets/keys.json"] = []byte("{}")
	f := newFixture(t, WithExports(objects))

	for _, name := range []string{
		"",
		"../secrets/keys.json",
		"users-20260301T093000Z-abcdef12.json/../../secrets/keys.json",
		"users-latest.json",
	} {
		_, err := f.svc.OpenExport(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
		assert.ErrorIs(t, f.svc.DeleteExport(ctx, name), ErrInvalidInput, name)
	}
	assert.Contains(t, objects.objects, "secrets/keys.json")

	disabled := newFixture(t).svc
	_, err := disabled.OpenExport(ctx, "users-20260301T093000Z-abcdef12.json")
	assert.ErrorIs(t, err, ErrExportsDisabled)
	assert.ErrorIs(t, disabled.DeleteExport(ctx, "users-20260301T093000Z-abcdef12.json"), ErrExportsDisabled)
}
