package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerlink/accounts/types"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, external_account_id, external_account_code,
		       external_account_linked, external_reauth_token, created_at, updated_at`

// PostgresUserBackend handles persistence for users in PostgreSQL.
type PostgresUserBackend struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresUserBackend(db *sql.DB) *PostgresUserBackend {
	return &PostgresUserBackend{db: db, now: time.Now}
}

func (r *PostgresUserBackend) GetByID(ctx context.Context, id string) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresUserBackend) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresUserBackend) Insert(ctx context.Context, user types.User) (types.User, error) {
	// Match the microsecond precision of timestamptz.
	now := r.now().UTC().Truncate(time.Microsecond)
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, email, password_hash, external_account_id, external_account_code,
		                   external_account_linked, external_reauth_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.ExternalAccountID,
		user.ExternalAccountCode,
		user.ExternalAccountLinked,
		user.ExternalReauthToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// Update applies the patch in a single statement; absent fields are passed
// as NULL and keep their current value through COALESCE.
func (r *PostgresUserBackend) Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}
	const query = `
		UPDATE users
		SET email = COALESCE($1, email),
			password_hash = COALESCE($2, password_hash),
			external_account_id = COALESCE($3, external_account_id),
			external_account_code = COALESCE($4, external_account_code),
			external_account_linked = COALESCE($5, external_account_linked),
			external_reauth_token = COALESCE($6, external_reauth_token),
			updated_at = $7
		WHERE id = $8
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(
		ctx,
		query,
		patch.Email,
		patch.PasswordHash,
		patch.ExternalAccountID,
		patch.ExternalAccountCode,
		patch.ExternalAccountLinked,
		patch.ExternalReauthToken,
		r.now().UTC().Truncate(time.Microsecond),
		id,
	))
	if err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

func (r *PostgresUserBackend) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUserBackend) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.ExternalAccountID,
		&user.ExternalAccountCode,
		&user.ExternalAccountLinked,
		&user.ExternalReauthToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
