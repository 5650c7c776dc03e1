package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotConfigured      = errors.New("admin password is not configured: set ADMIN_PASSWORD_HASH")
	ErrInvalidCredentials = errors.New("invalid password")
)

// PasswordVerifier checks the single staff password against a bcrypt hash.
type PasswordVerifier struct {
	hash []byte
}

func NewPasswordVerifier(hash string) *PasswordVerifier {
	return &PasswordVerifier{hash: []byte(hash)}
}

// Verify returns nil when password matches the configured hash.
func (v *PasswordVerifier) Verify(password string) error {
	if len(v.hash) == 0 {
		return ErrNotConfigured
	}
	err := bcrypt.CompareHashAndPassword(v.hash, []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidCredentials
	}
	return fmt.Errorf("compare password hash: %w", err)
}

// HashPassword produces a value suitable for ADMIN_PASSWORD_HASH. A cost of
// zero uses bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
