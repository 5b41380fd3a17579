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
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"SILLY", LevelSilly},
		{"silly", LevelSilly},
		{"TRACE", LevelSilly},
		{"DEBUG", slog.LevelDebug},
		{"verbose", LevelVerbose},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelOrdering(t *testing.T) {
	order := []slog.Level{LevelSilly, slog.LevelDebug, LevelVerbose, slog.LevelInfo, slog.LevelWarn, slog.LevelError}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("level %s should be below %s", LevelName(order[i-1]), LevelName(order[i]))
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q, want %q", got, "short")
	}
	if got := Truncate("this is a long string", 10); got != "this is a ..." {
		t.Errorf("Truncate long = %q, want %q", got, "this is a ...")
	}
}

func TestConsoleRendersCustomLevelNames(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{ConsoleLevel: LevelSilly, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer log.Close()

	log.Verbose("verbose message", "k", "v")
	log.Silly("silly message")

	out := buf.String()
	for _, want := range []string{"level=VERBOSE", "level=SILLY", "verbose message", "k=v"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q in:\n%s", want, out)
		}
	}
}

func TestSinksHaveIndependentThresholds(t *testing.T) {
	var console bytes.Buffer
	file := filepath.Join(t.TempDir(), "evileye_test.log")

	log, err := New(Config{
		Level:        LevelSilly,
		ConsoleLevel: slog.LevelWarn,
		Console:      &console,
		File:         file,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Debug("only in file")
	log.Warn("in both")
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if strings.Contains(console.String(), "only in file") {
		t.Error("console should not receive DEBUG records at WARN threshold")
	}
	if !strings.Contains(console.String(), "in both") {
		t.Error("console should receive WARN records")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("file lines = %d, want 2:\n%s", len(lines), data)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("file record is not JSON: %v", err)
	}
	if rec["msg"] != "only in file" {
		t.Errorf("msg = %v, want %q", rec["msg"], "only in file")
	}
}

func TestDisableConsole(t *testing.T) {
	log, err := New(Config{DisableConsole: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Enabled(context.Background(), slog.LevelError) {
		t.Error("logger without sinks should not be enabled")
	}
	// Should not panic.
	log.Error("dropped")
}

func TestWithSharesSinks(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{ConsoleLevel: slog.LevelInfo, Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.With("component", "registry").Info("hello")
	if !strings.Contains(buf.String(), "component=registry") {
		t.Errorf("missing attribute in %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Silly("nothing")
	if log.SillyEnabled() {
		t.Error("discard logger should not be enabled")
	}
}
