package types

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-abc")
	if got := GetRequestID(ctx); got != "req-abc" {
		t.Errorf("GetRequestID = %q, want %q", got, "req-abc")
	}
}

func TestRequestID_Missing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %q, want empty", got)
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	stored := slog.New(slog.NewTextHandler(&buf, nil)).With("request_id", "req-1")
	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("returns stored logger", func(t *testing.T) {
		ctx := WithLogger(context.Background(), stored)
		LoggerFromContext(ctx, fallback).Info("hello")
		if !bytes.Contains(buf.Bytes(), []byte("request_id=req-1")) {
			t.Errorf("stored logger was not used: %q", buf.String())
		}
	})

	t.Run("falls back when absent", func(t *testing.T) {
		if got := LoggerFromContext(context.Background(), fallback); got != fallback {
			t.Error("expected fallback logger")
		}
	})

	t.Run("falls back on nil logger", func(t *testing.T) {
		ctx := WithLogger(context.Background(), nil)
		if got := LoggerFromContext(ctx, fallback); got != fallback {
			t.Error("expected fallback logger for a nil stored logger")
		}
	})
}
