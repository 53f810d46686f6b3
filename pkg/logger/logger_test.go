package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestGet_BeforeInitIsNop(t *testing.T) {
	mu.Lock()
	global = nil
	mu.Unlock()

	l := Get()
	if l == nil {
		t.Fatal("expected a logger before Init")
	}
	// Must not panic.
	l.Info(context.Background(), "dropped", String("k", "v"))
}

func TestInit_WritesText(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(&buf, "text"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	SetLevel(slog.LevelInfo)

	Get().Named("engine").Info(context.Background(), "assigned", String("experiment_id", "exp-001"), Int("n", 3))

	out := buf.String()
	if !strings.Contains(out, "msg=assigned") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "engine.experiment_id=exp-001") {
		t.Errorf("expected grouped field in output, got %q", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Errorf("expected caller source in output, got %q", out)
	}
}

func TestInit_UnknownFormat(t *testing.T) {
	if err := Init(nil, "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(&buf, "json"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("SetLevelString failed: %v", err)
	}
	defer SetLevel(slog.LevelInfo)

	ctx := context.Background()
	Get().Debug(ctx, "debug line")
	Get().Info(ctx, "info line")
	Get().Error(ctx, "error line", Error(errors.New("boom")))

	out := buf.String()
	if strings.Contains(out, "debug line") || strings.Contains(out, "info line") {
		t.Errorf("expected debug and info to be filtered, got %q", out)
	}
	if !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("expected error field, got %q", out)
	}
}

func TestSetLevelString_Invalid(t *testing.T) {
	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.NewTextHandler(&buf, nil), false).With(String("component", "store"))
	l.Warn(context.Background(), "slow query")

	if !strings.Contains(buf.String(), "component=store") {
		t.Errorf("expected bound field, got %q", buf.String())
	}
}
