// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

// Package web serves the browser-facing authentication surface:
// login and signup forms, the protected home page, and the session
// cookie plumbing between them.
package web

import (
	"context"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/doorkeep/doorkeep/internal/auth"
	"github.com/doorkeep/doorkeep/internal/observability"
)

// Options tunes optional server behavior.
type Options struct {
	// Metrics receives request and auth-outcome counters. Nil disables
	// metric recording.
	Metrics *observability.Metrics
	// SecureCookies marks session cookies Secure for HTTPS deployments.
	SecureCookies bool
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the browser-facing HTTP server.
type Server struct {
	addr          string
	svc           *auth.Service
	templates     *template.Template
	logger        *slog.Logger
	metrics       *observability.Metrics
	secureCookies bool

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the web server. The auth service is required.
func NewServer(addr string, svc *auth.Service, opts Options) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("WEB_SERVER_INVALID").Errorf("auth service is required")
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		addr:          addr,
		svc:           svc,
		templates:     templates,
		logger:        logger,
		metrics:       opts.Metrics,
		secureCookies: opts.SecureCookies,
	}, nil
}

// Handler returns the full route tree with middleware applied. Exposed
// so tests can drive the server through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleLoginPage)
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.Handle("GET /home", s.requireSession(http.HandlerFunc(s.handleHome)))
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return s.observe(noCache(mux))
}

// Start begins serving. It returns an error channel that receives any
// error from the HTTP server after startup; the channel is closed on
// graceful shutdown. Callers should monitor it to detect failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the web server. In-flight requests get
// until the context deadline to finish.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_web_server").Wrap(err)
		}
	}

	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
