// Package credential hashes and verifies account passwords with bcrypt.
package credential

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the minimum number of characters in a plaintext password.
const MinPasswordLength = 6

// MaxPasswordBytes is the longest plaintext bcrypt hashes without truncating.
const MaxPasswordBytes = 72

// ErrInvalidInput is returned for passwords that cannot be hashed.
var ErrInvalidInput = errors.New("invalid input")

// Codec hashes passwords with a per-call random salt and verifies them.
// The cost is fixed at construction; a Codec is safe for concurrent use.
type Codec struct {
	cost int
}

// NewCodec returns a Codec using the given bcrypt cost. Costs outside
// bcrypt's accepted range fall back to bcrypt.DefaultCost.
func NewCodec(cost int) *Codec {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Codec{cost: cost}
}

// Cost returns the bcrypt work factor used by Hash.
func (c *Codec) Cost() int {
	return c.cost
}

// Hash returns the bcrypt hash of plaintext.
func (c *Codec) Hash(plaintext string) (string, error) {
	if err := ValidatePassword(plaintext); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether hashed was produced by Hash for plaintext.
// Plaintexts Hash would reject never verify, since bcrypt ignores bytes past
// MaxPasswordBytes.
func (c *Codec) Verify(plaintext, hashed string) bool {
	if hashed == "" || ValidatePassword(plaintext) != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext)) == nil
}

// ValidatePassword checks the plaintext rules enforced before hashing.
func ValidatePassword(plaintext string) error {
	if plaintext == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(plaintext) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if len(plaintext) > MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, MaxPasswordBytes)
	}
	return nil
}
