package utils

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds.  bcrypt ignores input beyond 72 bytes.
const (
	MinPasswordLen = 8
	MaxPasswordLen = 72
)

var ErrWeakPassword = errors.New("weak password")

// CheckPassword enforces the account password policy.
func CheckPassword(plain string) error {
	switch {
	case len(plain) < MinPasswordLen:
		return fmt.Errorf("%w: password must be at least %d characters", ErrWeakPassword, MinPasswordLen)
	case len(plain) > MaxPasswordLen:
		return fmt.Errorf("%w: password must be at most %d bytes", ErrWeakPassword, MaxPasswordLen)
	}
	return nil
}

// HashPassword returns the bcrypt hash of plain at the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
