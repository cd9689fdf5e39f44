package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"chargemap/internal/config"
)

// testLogger discards everything below error.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Build:       config.BuildInfo{Version: "test"},
	}
}

func TestNewServer_Success(t *testing.T) {
	cfg := testConfig()
	logger := testLogger()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer returned unexpected error: %v", err)
	}
	if srv.Config != cfg {
		t.Error("Config field not set correctly")
	}
	if srv.Logger != logger {
		t.Error("Logger field not set correctly")
	}
	if srv.Validator == nil {
		t.Error("Validator should be initialized by constructor")
	}
	if srv.Router() == nil || srv.Handler() == nil {
		t.Error("router should be initialized by constructor")
	}
}

func TestNewServer_NilDependencies(t *testing.T) {
	if _, err := NewServer(nil, testLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(testConfig(), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestShutdown_RunsAllClosers(t *testing.T) {
	srv, _ := NewServer(testConfig(), testLogger())

	var order []string
	boom := errors.New("boom")
	srv.Closers = []func() error{
		func() error { order = append(order, "db"); return boom },
		func() error { order = append(order, "redis"); return nil },
	}

	err := srv.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Shutdown error = %v, want wrapped boom", err)
	}
	if len(order) != 2 || order[0] != "db" || order[1] != "redis" {
		t.Errorf("closer order = %v, want [db redis]", order)
	}
}

func TestShutdown_NoClosers(t *testing.T) {
	srv, _ := NewServer(testConfig(), testLogger())
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown returned %v, want nil", err)
	}
}
