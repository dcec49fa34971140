// Package credential checks the shared moderation secret.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier compares a supplied credential against a bcrypt hash. The zero
// value denies everything.
type Verifier struct {
	hash []byte
}

// New builds a Verifier. passwordHash wins when both are set; a plain
// password is hashed once here so it is never compared directly. With
// neither set every credential is refused.
func New(password, passwordHash string) (*Verifier, error) {
	if hash := strings.TrimSpace(passwordHash); hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("parse moderation password hash: %w", err)
		}
		return &Verifier{hash: []byte(hash)}, nil
	}
	if password == "" {
		return &Verifier{}, nil
	}
	hash, err := Hash(password)
	if err != nil {
		return nil, err
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Hash returns the bcrypt hash for password, suitable for
// CLIMBS_MODERATION_PASSWORD_HASH.
func Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Enabled reports whether any credential can succeed.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

func (v *Verifier) Verify(credential string) bool {
	if !v.Enabled() || credential == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.hash, []byte(credential)) == nil
}
