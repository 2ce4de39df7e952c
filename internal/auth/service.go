// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Service provides authentication operations.
type Service struct {
	users    UserRepository
	sessions SessionRepository
	hasher   PasswordHasher
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService creates a new Service using the default logger.
// A non-positive ttl falls back to DefaultSessionTTL.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, ttl time.Duration) (*Service, error) {
	return NewServiceWithLogger(users, sessions, hasher, ttl, slog.Default())
}

// NewServiceWithLogger creates a new Service with an explicit logger.
func NewServiceWithLogger(users UserRepository, sessions SessionRepository, hasher PasswordHasher, ttl time.Duration, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("session repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		ttl:      ttl,
		logger:   logger,
	}, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SignUp registers a new account. The name must be 3-20 characters and
// the password at least 8. Sign-up does not create a session; the new
// user logs in afterwards.
func (s *Service) SignUp(ctx context.Context, name, password string) (*User, error) {
	var violations []string
	if err := ValidateName(name); err != nil {
		violations = append(violations, err.Error())
	}
	if err := ValidatePassword(password); err != nil {
		violations = append(violations, err.Error())
	}
	if len(violations) > 0 {
		return nil, oops.Code("AUTH_VALIDATION_FAILED").
			With("violations", violations).
			Errorf("invalid sign-up input")
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(name, passwordHash)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	// The repository enforces name uniqueness; concurrent sign-ups for
	// the same name resolve to exactly one winner.
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrNameTaken) {
			return nil, oops.Code("AUTH_NAME_TAKEN").
				With("name", name).
				Errorf("name %q is already taken", name)
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user signed up",
		"user_id", user.ID.String(),
		"name", user.Name,
	)
	return user, nil
}

// Login authenticates a user and creates a session.
// Returns the session, plaintext token, and any error.
// The password is verified even for unknown names so lookup and
// verification take consistent time.
func (s *Service) Login(ctx context.Context, name, password string) (*Session, string, error) {
	var violations []string
	if len(name) < MinNameLength {
		violations = append(violations, "name must be at least 3 characters")
	}
	if len(password) < MinLoginPasswordLength {
		violations = append(violations, "password cannot be empty")
	}
	if len(violations) > 0 {
		return nil, "", oops.Code("AUTH_VALIDATION_FAILED").
			With("violations", violations).
			Errorf("invalid login input")
	}

	user, lookupErr := s.users.GetByName(ctx, name)

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if errors.Is(lookupErr, ErrNotFound) {
			// Use dummy hash - still perform verification to maintain constant time
			targetHash = dummyPasswordHash
			userExists = false
		} else {
			return nil, "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by name").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// For dummy hash verification errors, just treat as unknown user
		if !userExists {
			return nil, "", oops.Code("AUTH_USER_NOT_FOUND").Errorf("user not found")
		}
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists {
		return nil, "", oops.Code("AUTH_USER_NOT_FOUND").Errorf("user not found")
	}
	if !valid {
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("incorrect password")
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	expiresAt := time.Now().Add(s.ttl)
	session, err := NewSession(user.ID, user.Name, tokenHash, expiresAt)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID.String(),
		"name", user.Name,
		"session_id", session.ID.String(),
	)
	return session, token, nil
}

// Authenticate validates a session token and returns the session if valid.
// Expired sessions are removed on sight, best effort.
func (s *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	// Hash the token to look it up
	tokenHash := HashSessionToken(token)

	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		_ = s.sessions.Delete(ctx, session.ID) //nolint:errcheck // Best effort, sweeper catches leftovers
		return nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	return session, nil
}

// Logout invalidates the session behind a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	tokenHash := HashSessionToken(token)

	session, err := s.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", session.ID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "user logged out",
		"user_id", session.UserID.String(),
		"session_id", session.ID.String(),
	)
	return nil
}

// SweepExpired removes all expired sessions and returns the count deleted.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "expired sessions swept", "deleted", deleted)
	}
	return deleted, nil
}
