// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package auth provides authentication primitives for Doorkeep.
//
// # Domain Types
//
// Domain types (User, Session) should be created using their
// constructors:
//   - NewUser - creates a User with a validated name and password hash
//   - NewSession - creates a Session with a validated user and expiry
//
// Direct struct initialization bypasses validation and may create
// invalid state. Repository implementations receive pre-validated
// types from these constructors.
//
// # Service
//
// Service coordinates the domain operations: sign-up, login, logout,
// and session authentication. It is created with NewService, which
// validates its dependencies.
package auth
