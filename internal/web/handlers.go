// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/pkg/errutil"
)

// sessionCookieName is the browser cookie holding the opaque session token.
const sessionCookieName = "doorkeep_session"

// handleLoginPage renders the login view.
func (s *Server) handleLoginPage(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "login.html", nil)
}

// handleSignupPage renders the signup view.
func (s *Server) handleSignupPage(w http.ResponseWriter, _ *http.Request) {
	s.render(w, "signup.html", nil)
}

// handleSignup registers a new account from the posted form. A
// successful sign-up redirects to the login page without creating a
// session; the new user logs in explicitly.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form data", http.StatusBadRequest)
		return
	}

	name := r.PostFormValue("name")
	password := r.PostFormValue("password")

	_, err := s.svc.SignUp(r.Context(), name, password)
	if err != nil {
		s.countSignup("failure")
		s.renderAuthError(w, r, err, "sign-up failed")
		return
	}

	s.countSignup("success")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogin authenticates the posted credentials and issues a session
// cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form data", http.StatusBadRequest)
		return
	}

	name := r.PostFormValue("name")
	password := r.PostFormValue("password")

	session, token, err := s.svc.Login(r.Context(), name, password)
	if err != nil {
		s.countLogin("failure")
		s.renderAuthError(w, r, err, "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	s.countLogin("success")
	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
	}
	http.Redirect(w, r, "/home", http.StatusSeeOther)
}

// handleHome renders the protected view. requireSession guarantees a
// session is present in the request context.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	session, err := SessionFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, "home.html", map[string]string{"UserName": session.UserName})
}

// handleLogout destroys the session and clears the cookie. A missing or
// unknown session still redirects; logout is idempotent from the
// browser's point of view.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := s.svc.Logout(r.Context(), cookie.Value); err != nil {
			code := errorCode(err)
			if code != "SESSION_NOT_FOUND" && code != "SESSION_TOKEN_EMPTY" {
				errutil.LogError(s.logger, "logout failed", err)
				http.Error(w, "an error occurred during logout", http.StatusInternalServerError)
				return
			}
		}
	}

	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleHealthz reports liveness of the web listener itself. Deep
// health lives on the observability server.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// clearSessionCookie instructs the browser to drop the session cookie.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// render executes a template; template failures surface as generic 500s.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		errutil.LogError(s.logger, "template render failed", err)
		http.Error(w, "an internal error occurred", http.StatusInternalServerError)
	}
}

// renderAuthError maps auth service errors to user-facing responses.
// Expected failures (validation, taken name, bad credentials) become
// 400s with their message; anything else is logged and returns a
// generic 500 without leaking internals.
func (s *Server) renderAuthError(w http.ResponseWriter, _ *http.Request, err error, logMsg string) {
	switch errorCode(err) {
	case "AUTH_VALIDATION_FAILED":
		http.Error(w, "validation error: "+violationText(err), http.StatusBadRequest)
	case "AUTH_NAME_TAKEN":
		http.Error(w, "name already taken, please choose another", http.StatusBadRequest)
	case "AUTH_USER_NOT_FOUND":
		http.Error(w, "user not found", http.StatusBadRequest)
	case "AUTH_INVALID_CREDENTIALS":
		http.Error(w, "incorrect password", http.StatusBadRequest)
	default:
		errutil.LogError(s.logger, logMsg, err)
		http.Error(w, "an internal error occurred, please try again", http.StatusInternalServerError)
	}
}

// errorCode extracts the oops error code, or "" for plain errors.
func errorCode(err error) string {
	if oopsErr, ok := oops.AsOops(err); ok {
		if code, ok := oopsErr.Code().(string); ok {
			return code
		}
	}
	return ""
}

// violationText flattens the aggregated validation violations into a
// single comma-separated line for the 400 body.
func violationText(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return err.Error()
	}
	raw, ok := oopsErr.Context()["violations"]
	if !ok {
		return oopsErr.Error()
	}
	switch v := raw.(type) {
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func (s *Server) countSignup(outcome string) {
	if s.metrics != nil {
		s.metrics.SignupsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}
