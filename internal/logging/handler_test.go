package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHandlerHandle(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("backing up saves", "mode", "directory", "files", 3)

	output := buf.String()
	for _, want := range []string{"INFO", "backing up saves", "mode=directory", "files=3"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %q", want, output)
		}
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("expected trailing newline, got: %q", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("expected no color codes for a buffer, got: %q", output)
	}
}

func TestHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil))

	logger.Warn("snapshot failed", "error", "open x: no space left")

	if !strings.Contains(buf.String(), `error="open x: no space left"`) {
		t.Errorf("expected quoted error value, got: %q", buf.String())
	}
}

func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, nil))
	logger := base.With("run_id", "abc")

	logger.Info("message", "local", "val")
	base.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "run_id=abc") || !strings.Contains(lines[0], "local=val") {
		t.Errorf("expected both attributes, got: %q", lines[0])
	}
	if strings.Contains(lines[1], "run_id") {
		t.Errorf("With must not leak into the parent logger, got: %q", lines[1])
	}
}

func TestHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil)).WithGroup("retention")

	logger.Info("pruned", "deleted", 2, slog.Group("policy", "max_count", 5))

	output := buf.String()
	if !strings.Contains(output, "retention.deleted=2") {
		t.Errorf("expected group-qualified key, got: %q", output)
	}
	if !strings.Contains(output, "retention.policy.max_count=5") {
		t.Errorf("expected nested group key, got: %q", output)
	}
}

func TestHandlerEnabled(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	ctx := context.Background()
	if h.Enabled(ctx, slog.LevelInfo) {
		t.Error("expected Info level to be disabled when min level is Warn")
	}
	if !h.Enabled(ctx, slog.LevelWarn) {
		t.Error("expected Warn level to be enabled")
	}

	if NewHandler(&bytes.Buffer{}, nil).Enabled(ctx, slog.LevelDebug) {
		t.Error("expected Debug to be disabled by default")
	}
}

func TestHandlerNoTime(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil)

	r := slog.NewRecord(time.Time{}, slog.LevelInfo, "no time", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "INFO") {
		t.Errorf("expected line to start with the level, got: %q", buf.String())
	}
}
