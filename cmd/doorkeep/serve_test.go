package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/doorkeep/doorkeep/internal/config"
	"github.com/doorkeep/doorkeep/pkg/errutil"
)

func TestServeCommand_Flags(t *testing.T) {
	cmd := NewServeCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := buf.String()

	// Verify all expected flags are present
	expectedFlags := []string{
		"--addr",
		"--metrics-addr",
		"--database-url",
		"--session-ttl",
		"--sweep-interval",
		"--log-format",
		"--secure-cookies",
		"--in-memory",
		"--auto-migrate",
	}

	for _, flag := range expectedFlags {
		if !strings.Contains(output, flag) {
			t.Errorf("Help missing %q flag", flag)
		}
	}
}

func TestServeCommand_DefaultValues(t *testing.T) {
	cmd := NewServeCmd()

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		t.Fatalf("Failed to get addr flag: %v", err)
	}
	if addr != ":8080" {
		t.Errorf("addr default = %q, want %q", addr, ":8080")
	}

	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		t.Fatalf("Failed to get metrics-addr flag: %v", err)
	}
	if metricsAddr != "127.0.0.1:9100" {
		t.Errorf("metrics-addr default = %q, want %q", metricsAddr, "127.0.0.1:9100")
	}

	logFormat, err := cmd.Flags().GetString("log-format")
	if err != nil {
		t.Fatalf("Failed to get log-format flag: %v", err)
	}
	if logFormat != "json" {
		t.Errorf("log-format default = %q, want %q", logFormat, "json")
	}

	inMemory, err := cmd.Flags().GetBool("in-memory")
	if err != nil {
		t.Fatalf("Failed to get in-memory flag: %v", err)
	}
	if inMemory {
		t.Error("in-memory should default to false")
	}

	autoMigrate, err := cmd.Flags().GetBool("auto-migrate")
	if err != nil {
		t.Fatalf("Failed to get auto-migrate flag: %v", err)
	}
	if autoMigrate {
		t.Error("auto-migrate should default to false")
	}
}

func TestServeCommand_Properties(t *testing.T) {
	cmd := NewServeCmd()

	if cmd.Use != "serve" {
		t.Errorf("Use = %q, want %q", cmd.Use, "serve")
	}
	if !strings.Contains(cmd.Short, "web server") {
		t.Error("Short description should mention web server")
	}
	if !strings.Contains(cmd.Long, "PostgreSQL") {
		t.Error("Long description should mention PostgreSQL")
	}
}

// testServeConfig returns a config that binds ephemeral ports and
// disables the observability listener.
func testServeConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Addr: "127.0.0.1:0"},
		Metrics: config.MetricsConfig{Addr: ""},
		Session: config.SessionConfig{
			TTL:           time.Hour,
			SweepInterval: time.Hour,
		},
		Log: config.LogConfig{Format: "json"},
	}
}

func newServeTestCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	return cmd
}

func TestRunServe_ConfigErrorPropagates(t *testing.T) {
	wantErr := errors.New("config load failed")
	deps := &ServeDeps{
		ConfigLoader: func(_ string, _ *pflag.FlagSet) (*config.Config, error) {
			return nil, wantErr
		},
	}

	err := runServeWithDeps(context.Background(), newServeTestCmd(), &serveFlags{}, deps)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRunServe_InMemoryLifecycle(t *testing.T) {
	deps := &ServeDeps{
		ConfigLoader: func(_ string, _ *pflag.FlagSet) (*config.Config, error) {
			return testServeConfig(), nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- runServeWithDeps(ctx, newServeTestCmd(), &serveFlags{inMemory: true}, deps)
	}()

	// Give the servers a moment to come up, then trigger shutdown.
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServeWithDeps() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not shut down after context cancel")
	}
}

func TestRunServe_MissingDatabaseURL(t *testing.T) {
	deps := &ServeDeps{
		ConfigLoader: func(_ string, _ *pflag.FlagSet) (*config.Config, error) {
			return testServeConfig(), nil
		},
	}

	err := runServeWithDeps(context.Background(), newServeTestCmd(), &serveFlags{}, deps)
	if err == nil {
		t.Fatal("expected error without database.url")
	}
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

// mockMigrator implements Migrator for auto-migrate tests.
type mockMigrator struct {
	upErr    error
	closeErr error
	upCalled bool
}

func (m *mockMigrator) Up() error {
	m.upCalled = true
	return m.upErr
}

func (m *mockMigrator) Close() error { return m.closeErr }

func TestAutoMigrate(t *testing.T) {
	t.Run("runs migrations", func(t *testing.T) {
		migrator := &mockMigrator{}
		deps := &ServeDeps{
			MigratorFactory: func(_ string) (Migrator, error) { return migrator, nil },
		}

		if err := autoMigrate(deps, "postgres://localhost/doorkeep"); err != nil {
			t.Fatalf("autoMigrate() error = %v", err)
		}
		if !migrator.upCalled {
			t.Error("expected Up() to be called")
		}
	})

	t.Run("requires database url", func(t *testing.T) {
		err := autoMigrate(&ServeDeps{}, "")
		if err == nil {
			t.Fatal("expected error without database URL")
		}
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("propagates up error", func(t *testing.T) {
		migrator := &mockMigrator{upErr: errors.New("migration failed")}
		deps := &ServeDeps{
			MigratorFactory: func(_ string) (Migrator, error) { return migrator, nil },
		}

		err := autoMigrate(deps, "postgres://localhost/doorkeep")
		if !errors.Is(err, migrator.upErr) {
			t.Fatalf("expected up error, got %v", err)
		}
	})

	t.Run("propagates factory error", func(t *testing.T) {
		factoryErr := errors.New("bad URL")
		deps := &ServeDeps{
			MigratorFactory: func(_ string) (Migrator, error) { return nil, factoryErr },
		}

		err := autoMigrate(deps, "postgres://localhost/doorkeep")
		if !errors.Is(err, factoryErr) {
			t.Fatalf("expected factory error, got %v", err)
		}
	})
}

// TestMonitorServerErrors verifies that monitorServerErrors cancels context on error.
func TestMonitorServerErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create error channel and send error
	errCh := make(chan error, 1)
	errCh <- fmt.Errorf("test server error")

	// Start monitoring
	done := make(chan struct{})
	go func() {
		monitorServerErrors(ctx, cancel, errCh, "test-server")
		close(done)
	}()

	// Wait for context to be cancelled
	select {
	case <-ctx.Done():
		// Success - context was cancelled
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after server error")
	}

	// Wait for goroutine to complete
	select {
	case <-done:
		// Success
	case <-time.After(time.Second):
		t.Fatal("monitorServerErrors goroutine did not complete")
	}
}

// TestMonitorServerErrors_NilError verifies that nil errors don't cancel context.
func TestMonitorServerErrors_NilError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create error channel and send nil (graceful shutdown)
	errCh := make(chan error, 1)
	errCh <- nil

	done := make(chan struct{})
	go func() {
		monitorServerErrors(ctx, cancel, errCh, "test-server")
		close(done)
	}()

	select {
	case <-done:
		// Success - goroutine completed
	case <-time.After(time.Second):
		t.Fatal("monitorServerErrors goroutine did not complete")
	}

	// Context should NOT be cancelled for nil error
	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled for nil error")
	default:
		// Success - context still active
	}
}

// TestMonitorServerErrors_ChannelClose verifies handling when channel is closed.
func TestMonitorServerErrors_ChannelClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create and immediately close channel
	errCh := make(chan error, 1)
	close(errCh)

	done := make(chan struct{})
	go func() {
		monitorServerErrors(ctx, cancel, errCh, "test-server")
		close(done)
	}()

	select {
	case <-done:
		// Success - goroutine completed
	case <-time.After(time.Second):
		t.Fatal("monitorServerErrors goroutine did not complete")
	}

	// Context should NOT be cancelled for closed channel (graceful)
	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled when channel closes gracefully")
	default:
		// Success - context still active
	}
}

// TestMonitorServerErrors_ContextCancelled verifies behavior when context is cancelled first.
func TestMonitorServerErrors_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Create error channel but don't send anything
	errCh := make(chan error, 1)

	done := make(chan struct{})
	go func() {
		monitorServerErrors(ctx, cancel, errCh, "test-server")
		close(done)
	}()

	// Cancel context before any error arrives
	cancel()

	select {
	case <-done:
		// Success - goroutine completed
	case <-time.After(time.Second):
		t.Fatal("monitorServerErrors goroutine did not complete after context cancel")
	}
}
