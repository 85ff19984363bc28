package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		t.Run(format, func(t *testing.T) {
			logger := New(config.LoggingConfig{Level: "info", Format: format, Output: "stderr"}, "1.0.0")
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected slog.Level
	}{
		{name: "debug level", input: "debug", expected: slog.LevelDebug},
		{name: "info level", input: "info", expected: slog.LevelInfo},
		{name: "warn level", input: "warn", expected: slog.LevelWarn},
		{name: "warning level", input: "warning", expected: slog.LevelWarn},
		{name: "error level", input: "error", expected: slog.LevelError},
		{name: "unknown defaults to info", input: "unknown", expected: slog.LevelInfo},
		{name: "empty defaults to info", input: "", expected: slog.LevelInfo},
		{name: "case insensitive", input: "DEBUG", expected: slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewWithWriter_DefaultFields(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "info", Format: "json"}, "test-version")
	logger.Info("test message", "key", "value")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if logEntry["service"] != ServiceName {
		t.Errorf("service = %v, want %q", logEntry["service"], ServiceName)
	}
	if logEntry["version"] != "test-version" {
		t.Errorf("version = %v, want %q", logEntry["version"], "test-version")
	}
	if logEntry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", logEntry["msg"], "test message")
	}
	if logEntry["key"] != "value" {
		t.Errorf("key = %v, want %q", logEntry["key"], "value")
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, config.LoggingConfig{Level: "warn", Format: "text"}, "test")
	logger.Info("dropped")
	logger.Warn("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(output, "kept") {
		t.Error("warn entry missing")
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&buf, config.LoggingConfig{Format: "json"}, "test")
	child := logger.Component("shellhid")
	if child == logger {
		t.Error("expected child logger to be different from parent")
	}

	child.Info("opened")

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if logEntry["component"] != "shellhid" {
		t.Errorf("component = %v, want %q", logEntry["component"], "shellhid")
	}
}

func TestDefaultAndDiscard(t *testing.T) {
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
	d := Discard()
	if d == nil {
		t.Fatal("expected non-nil discard logger")
	}
	d.Error("goes nowhere")
}
