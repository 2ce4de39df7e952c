// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package auth

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Name validation constraints.
const (
	MinNameLength = 3
	MaxNameLength = 20
)

// Password validation constraints. MinLoginPasswordLength is looser
// than MinPasswordLength: existing accounts may predate the current
// sign-up policy, so login only rejects empty passwords.
const (
	MinPasswordLength      = 8
	MinLoginPasswordLength = 1
)

// User represents a registered account.
type User struct {
	ID           ulid.ULID
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUser creates a validated User instance.
// The name must satisfy ValidateName; the password hash must be non-empty.
func NewUser(name, passwordHash string) (*User, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_USER").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:           ulid.Make(),
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}, nil
}

// ValidateName validates an account name.
// Name requirements:
// - Length: MinNameLength to MaxNameLength characters
// - No leading or trailing whitespace
// - No control characters
//
// Names are case-sensitive: "Ada" and "ada" are distinct accounts.
func ValidateName(name string) error {
	if name == "" {
		return oops.Code("AUTH_INVALID_NAME").Errorf("name cannot be empty")
	}
	if len(name) < MinNameLength {
		return oops.Code("AUTH_INVALID_NAME").
			With("min", MinNameLength).
			Errorf("name must be at least %d characters", MinNameLength)
	}
	if len(name) > MaxNameLength {
		return oops.Code("AUTH_INVALID_NAME").
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	if name != strings.TrimSpace(name) {
		return oops.Code("AUTH_INVALID_NAME").Errorf("name cannot start or end with whitespace")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return oops.Code("AUTH_INVALID_NAME").Errorf("name cannot contain control characters")
		}
	}
	return nil
}

// ValidatePassword validates a new account password.
func ValidatePassword(password string) error {
	if password == "" {
		return oops.Code("AUTH_INVALID_PASSWORD").Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_INVALID_PASSWORD").
			With("min", MinPasswordLength).
			Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrNameTaken if the name is
	// already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByName retrieves a user by name (case-sensitive).
	// Returns ErrNotFound if absent.
	GetByName(ctx context.Context, name string) (*User, error)
}
