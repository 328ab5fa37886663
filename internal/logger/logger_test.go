package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInit_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "moraleval.log")

	if err := Init(Config{Level: "debug", Format: "json", Output: path}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Named("pipeline").Debug("stage finished", "stage", "respond")
	if err := Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"component":"pipeline"`, `"stage":"respond"`, `"msg":"stage finished"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}

	if err := Init(Config{}); err != nil {
		t.Fatalf("Init with defaults failed: %v", err)
	}
}
