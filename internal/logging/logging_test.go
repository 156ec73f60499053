package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		" DEBUG ": slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %v, got %v", input, want, got)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, err := New(&out, Options{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "palette", "classic")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %q", out.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["msg"] != "kept" || record["palette"] != "classic" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestNewTextWithoutTerminalHasNoColor(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	logger, err := New(&out, Options{})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", "blocks", 16)

	text := out.String()
	if !strings.Contains(text, "hello") || !strings.Contains(text, "blocks=16") {
		t.Fatalf("unexpected output %q", text)
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("expected no escape codes for a buffer, got %q", text)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := New(&bytes.Buffer{}, Options{Format: "xml"}); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}

func TestOrDiscard(t *testing.T) {
	t.Parallel()

	if OrDiscard(nil) == nil {
		t.Fatal("expected a logger for nil")
	}
	logger := slog.Default()
	if OrDiscard(logger) != logger {
		t.Fatal("expected non-nil logger to pass through")
	}
}
