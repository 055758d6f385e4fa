package types

import "time"

// User represents an account in the system.
// It contains the login identity, the password hash, and the attributes
// of an optionally linked external account.
type User struct {
	// ID is the opaque unique identifier assigned by the store at creation.
	ID string `json:"id" db:"id"`

	// Email is the login identifier. It is unique across all users and
	// matched exactly as stored.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ExternalAccountID identifies the account linked from an external provider.
	ExternalAccountID string `json:"externalAccountId" db:"external_account_id"`

	// ExternalAccountCode is the short-lived code produced by the external
	// linkage flow.
	ExternalAccountCode string `json:"externalAccountCode" db:"external_account_code"`

	// ExternalAccountLinked reports whether the external linkage is active.
	ExternalAccountLinked bool `json:"externalAccountLinked" db:"external_account_linked"`

	// ExternalReauthToken allows re-authenticating against the external account.
	ExternalReauthToken string `json:"externalReauthToken" db:"external_reauth_token"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// NewUser carries the fields accepted when creating a user.
// Nil optional fields are filled from UserDefaults.
type NewUser struct {
	Email               string
	Password            string
	ExternalAccountID   *string
	ExternalAccountCode *string
	ExternalReauthToken *string
}

// UserPatch is a merge-patch over a User. Nil fields keep their stored value.
type UserPatch struct {
	Email                 *string `json:"email,omitempty"`
	Password              *string `json:"password,omitempty"`
	ExternalAccountID     *string `json:"externalAccountId,omitempty"`
	ExternalAccountCode   *string `json:"externalAccountCode,omitempty"`
	ExternalAccountLinked *bool   `json:"externalAccountLinked,omitempty"`
	ExternalReauthToken   *string `json:"externalReauthToken,omitempty"`

	// PasswordHash is set by the repository after hashing Password and is
	// the only password field a store backend writes.
	PasswordHash *string `json:"-"`
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Email == nil &&
		p.PasswordHash == nil &&
		p.ExternalAccountID == nil &&
		p.ExternalAccountCode == nil &&
		p.ExternalAccountLinked == nil &&
		p.ExternalReauthToken == nil
}

// Apply returns u with every non-nil field of the patch written over it.
func (p UserPatch) Apply(u User) User {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.ExternalAccountID != nil {
		u.ExternalAccountID = *p.ExternalAccountID
	}
	if p.ExternalAccountCode != nil {
		u.ExternalAccountCode = *p.ExternalAccountCode
	}
	if p.ExternalAccountLinked != nil {
		u.ExternalAccountLinked = *p.ExternalAccountLinked
	}
	if p.ExternalReauthToken != nil {
		u.ExternalReauthToken = *p.ExternalReauthToken
	}
	return u
}

// UserDefaults holds the values applied to optional fields omitted on create.
type UserDefaults struct {
	ExternalAccountID     string
	ExternalAccountCode   string
	ExternalAccountLinked bool
	ExternalReauthToken   string
}

// DefaultUserDefaults returns the zero-valued defaults: empty strings and
// an unlinked external account.
func DefaultUserDefaults() UserDefaults {
	return UserDefaults{}
}

// Build turns a NewUser into a User with defaults applied. The password hash
// is left empty for the caller to fill.
func (d UserDefaults) Build(in NewUser) User {
	u := User{
		Email:                 in.Email,
		ExternalAccountID:     d.ExternalAccountID,
		ExternalAccountCode:   d.ExternalAccountCode,
		ExternalAccountLinked: d.ExternalAccountLinked,
		ExternalReauthToken:   d.ExternalReauthToken,
	}
	if in.ExternalAccountID != nil {
		u.ExternalAccountID = *in.ExternalAccountID
	}
	if in.ExternalAccountCode != nil {
		u.ExternalAccountCode = *in.ExternalAccountCode
	}
	if in.ExternalReauthToken != nil {
		u.ExternalReauthToken = *in.ExternalReauthToken
	}
	return u
}
