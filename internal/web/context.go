// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package web

import (
	"context"
	"errors"

	"github.com/doorkeep/doorkeep/internal/auth"
)

// ErrNoSession indicates the request carries no authenticated session.
var ErrNoSession = errors.New("no session in context")

type contextKey int

const sessionContextKey contextKey = iota

// withSession returns a child context carrying the authenticated session.
func withSession(ctx context.Context, session *auth.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext returns the authenticated session for the request,
// or ErrNoSession for anonymous requests.
func SessionFromContext(ctx context.Context) (*auth.Session, error) {
	session, ok := ctx.Value(sessionContextKey).(*auth.Session)
	if !ok || session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}
