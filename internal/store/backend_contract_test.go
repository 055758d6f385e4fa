package store

import (
	"context"
	"sync"
	"testing"

	"github.com/ledgerlink/accounts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBackendContract exercises the behaviour every Backend must share.
// newBackend must return an empty store.
func runBackendContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("insert assigns id and timestamps", func(t *testing.T) {
		backend := newBackend(t)
		created, err := backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)

		byID, err := backend.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", byID.Email)
		assert.Equal(t, "h", byID.PasswordHash)
		assert.True(t, created.CreatedAt.Equal(byID.CreatedAt), "created %v, stored %v", created.CreatedAt, byID.CreatedAt)
		assert.True(t, created.UpdatedAt.Equal(byID.UpdatedAt), "created %v, stored %v", created.UpdatedAt, byID.UpdatedAt)

		byEmail, err := backend.GetByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		backend := newBackend(t)
		_, err := backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		_, err = backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h2"})
		assert.ErrorIs(t, err, ErrDuplicateEmail)

		users, err := backend.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("email match is exact", func(t *testing.T) {
		backend := newBackend(t)
		_, err := backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		_, err = backend.GetByEmail(ctx, "A@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent inserts keep one record per email", func(t *testing.T) {
		backend := newBackend(t)
		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = backend.Insert(ctx, types.User{Email: "race@x.com", PasswordHash: "h"})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrDuplicateEmail)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("update applies only present fields", func(t *testing.T) {
		backend := newBackend(t)
		created, err := backend.Insert(ctx, types.User{
			Email:             "a@x.com",
			PasswordHash:      "h",
			ExternalAccountID: "ext-1",
		})
		require.NoError(t, err)

		linked := true
		code := "code-7"
		updated, err := backend.Update(ctx, created.ID, types.UserPatch{
			ExternalAccountLinked: &linked,
			ExternalAccountCode:   &code,
		})
		require.NoError(t, err)

		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, "a@x.com", updated.Email)
		assert.Equal(t, "h", updated.PasswordHash)
		assert.Equal(t, "ext-1", updated.ExternalAccountID)
		assert.Equal(t, "code-7", updated.ExternalAccountCode)
		assert.True(t, updated.ExternalAccountLinked)
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
	})

	t.Run("update to taken email rejected", func(t *testing.T) {
		backend := newBackend(t)
		_, err := backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)
		second, err := backend.Insert(ctx, types.User{Email: "b@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		taken := "a@x.com"
		_, err = backend.Update(ctx, second.ID, types.UserPatch{Email: &taken})
		assert.ErrorIs(t, err, ErrDuplicateEmail)

		stored, err := backend.GetByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "b@x.com", stored.Email)
	})

	t.Run("update to own email allowed", func(t *testing.T) {
		backend := newBackend(t)
		created, err := backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		same := "a@x.com"
		updated, err := backend.Update(ctx, created.ID, types.UserPatch{Email: &same})
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", updated.Email)
	})

	t.Run("missing ids", func(t *testing.T) {
		backend := newBackend(t)
		email := "z@x.com"
		for _, id := range []string{"", "missing", "00000000-0000-0000-0000-000000000000", "65a000000000000000000000"} {
			_, err := backend.GetByID(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound, "get %q", id)
			_, err = backend.Update(ctx, id, types.UserPatch{Email: &email})
			assert.ErrorIs(t, err, ErrNotFound, "update %q", id)
			assert.ErrorIs(t, backend.Delete(ctx, id), ErrNotFound, "delete %q", id)
		}
		_, err := backend.GetByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete is permanent", func(t *testing.T) {
		backend := newBackend(t)
		created, err := backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h"})
		require.NoError(t, err)

		require.NoError(t, backend.Delete(ctx, created.ID))

		_, err = backend.GetByID(ctx, created.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, backend.Delete(ctx, created.ID), ErrNotFound)

		// The email is free again once the record is gone.
		_, err = backend.Insert(ctx, types.User{Email: "a@x.com", PasswordHash: "h"})
		assert.NoError(t, err)
	})

	t.Run("list returns every record in creation order", func(t *testing.T) {
		backend := newBackend(t)
		users, err := backend.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
			_, err := backend.Insert(ctx, types.User{Email: email, PasswordHash: "h"})
			require.NoError(t, err)
		}

		users, err = backend.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "a@x.com", users[0].Email)
		assert.Equal(t, "c@x.com", users[2].Email)
	})
}
