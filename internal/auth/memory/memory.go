// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package memory implements the auth repositories in process memory.
// Intended for development and tests; nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/doorkeep/doorkeep/internal/auth"
)

// UserRepository implements auth.UserRepository with a mutex-guarded map.
type UserRepository struct {
	mu     sync.RWMutex
	byID   map[ulid.ULID]*auth.User
	byName map[string]ulid.ULID
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:   make(map[ulid.ULID]*auth.User),
		byName: make(map[string]ulid.ULID),
	}
}

// Create stores a new user. The name index is checked and updated under
// one lock, so concurrent creates for the same name have exactly one
// winner.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[user.Name]; exists {
		return auth.ErrNameTaken
	}

	stored := *user
	r.byID[stored.ID] = &stored
	r.byName[stored.Name] = stored.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// GetByName retrieves a user by name (case-sensitive).
func (r *UserRepository) GetByName(_ context.Context, name string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

// SessionRepository implements auth.SessionRepository with a
// mutex-guarded map.
type SessionRepository struct {
	mu     sync.RWMutex
	byID   map[ulid.ULID]*auth.Session
	byHash map[string]ulid.ULID
}

// NewSessionRepository creates an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		byID:   make(map[ulid.ULID]*auth.Session),
		byHash: make(map[string]ulid.ULID),
	}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *session
	r.byID[stored.ID] = &stored
	r.byHash[stored.TokenHash] = stored.ID
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(r.byHash, session.TokenHash)
	delete(r.byID, id)
	return nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var deleted int64
	for id, session := range r.byID {
		if now.After(session.ExpiresAt) {
			delete(r.byHash, session.TokenHash)
			delete(r.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

// Compile-time interface checks.
var (
	_ auth.UserRepository    = (*UserRepository)(nil)
	_ auth.SessionRepository = (*SessionRepository)(nil)
)
