package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/config"
)

func captureLogger(t *testing.T, cfg config.LoggingConfig) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return newLogger(cfg, "test", &buf), &buf
}

func TestLogger_StampsServiceAndVersion(t *testing.T) {
	logger, buf := captureLogger(t, config.LoggingConfig{Level: "info", Format: "json"})
	logger.Info("sync cycle complete", "devices", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["service"] != "melbridge" {
		t.Errorf("service = %v, want melbridge", entry["service"])
	}
	if entry["version"] != "test" {
		t.Errorf("version = %v, want test", entry["version"])
	}
	if entry["msg"] != "sync cycle complete" {
		t.Errorf("msg = %v, want sync cycle complete", entry["msg"])
	}
	if entry["devices"] != float64(3) {
		t.Errorf("devices = %v, want 3", entry["devices"])
	}
}

func TestLogger_LevelFiltersDebug(t *testing.T) {
	logger, buf := captureLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	logger.Debug("suppressed")
	if buf.Len() != 0 {
		t.Errorf("debug entry written at info level: %s", buf.String())
	}

	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn entry suppressed at info level")
	}
}

func TestLogger_TextFormat(t *testing.T) {
	logger, buf := captureLogger(t, config.LoggingConfig{Level: "debug", Format: "text"})
	logger.Info("hello")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %s", out)
	}
	if !strings.Contains(out, "msg=hello") {
		t.Errorf("text output missing message: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLogger_WithAddsComponent(t *testing.T) {
	logger, buf := captureLogger(t, config.LoggingConfig{Level: "info", Format: "json"})
	logger.With("component", "poller").Info("cycle")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["component"] != "poller" {
		t.Errorf("component = %v, want poller", entry["component"])
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}
