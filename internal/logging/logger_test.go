package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/netsweep/internal/constants"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"info level", "info"},
		{"debug level", "debug"},
		{"trace level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestLevelTrace(t *testing.T) {
	// Trace should be below debug (more verbose)
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"info", "DEBUG", "Trace"} {
		if !ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "warn", "verbose"} {
		if ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = true, want false", s)
		}
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "simulator stdin", "bytes", 42)

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace record not labelled TRACE: %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic and must report nothing enabled.
	l := Discard()
	l.Info("dropped")
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard() logger should not be enabled")
	}
}

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse JSONL entry %q: %v", line, err)
		}
		events = append(events, entry)
	}
	return events
}

func TestNewEventLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLogger(dir, "info")

	if el != nil {
		t.Error("expected nil EventLogger at info level")
	}

	// Nil logger is still usable.
	el.Log("run_started", map[string]any{"index": 0})
	if el.Path() != "" {
		t.Errorf("nil Path() = %q, want empty", el.Path())
	}

	if _, err := os.Stat(filepath.Join(dir, constants.EventsFileName)); err == nil {
		t.Error("events file should not exist at info level")
	}
}

func TestEventLogger_WritesJSONL(t *testing.T) {
	for _, level := range []string{"debug", "trace"} {
		t.Run(level, func(t *testing.T) {
			dir := t.TempDir()
			el := NewEventLogger(dir, level)
			if el == nil {
				t.Fatal("expected non-nil EventLogger")
			}
			defer el.Close()

			el.Log("run_started", map[string]any{"plan_id": "p1", "index": 3})
			el.Log("run_finished", map[string]any{"plan_id": "p1", "index": 3, "status": "done"})

			if el.Path() != filepath.Join(dir, constants.EventsFileName) {
				t.Errorf("Path() = %s", el.Path())
			}

			events := readEvents(t, el.Path())
			if len(events) != 2 {
				t.Fatalf("got %d events, want 2", len(events))
			}
			if events[0]["event"] != "run_started" || events[1]["event"] != "run_finished" {
				t.Errorf("events = %v", events)
			}
			if events[1]["status"] != "done" || events[1]["index"] != float64(3) {
				t.Errorf("fields lost: %v", events[1])
			}
			if _, ok := events[0]["time"]; !ok {
				t.Error("expected 'time' field in event")
			}
		})
	}
}

func TestEventLogger_DoesNotMutateCallerMap(t *testing.T) {
	el := NewEventLogger(t.TempDir(), "debug")
	defer el.Close()

	fields := map[string]any{"index": 1}
	el.Log("run_started", fields)

	if len(fields) != 1 {
		t.Errorf("Log() mutated the caller's map: %v", fields)
	}
}

func TestEventLogger_NilAndClosed(t *testing.T) {
	var el *EventLogger
	el.Log("should_not_panic", nil)
	el.Close()

	dir := t.TempDir()
	el = NewEventLogger(dir, "debug")
	el.Log("before_close", nil)
	el.Close()
	el.Log("after_close", nil)
	el.Close()

	events := readEvents(t, filepath.Join(dir, constants.EventsFileName))
	if len(events) != 1 || events[0]["event"] != "before_close" {
		t.Errorf("events = %v, want only before_close", events)
	}
}

func TestEventLogger_CreatesDirWithPrivatePerms(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "sub", "dir")
	el := NewEventLogger(nested, "debug")
	if el == nil {
		t.Fatal("expected non-nil EventLogger when dir needs creation")
	}
	defer el.Close()
	el.Log("probe", nil)

	info, err := os.Stat(filepath.Join(nested, constants.EventsFileName))
	if err != nil {
		t.Fatalf("events file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
