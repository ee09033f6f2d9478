package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config"},
		{name: "explicit config", config: &Config{Level: LevelDebug, Output: &bytes.Buffer{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected no output below Warn level, got: %s", buf.String())
	}

	logger.Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %s", buf.String())
	}
}

func TestLoggerFormatsArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("stream created", "stream_id", "deadbeef", "direction", "input")
	output := buf.String()
	if !strings.Contains(output, "stream_id=deadbeef") {
		t.Errorf("expected stream_id=deadbeef in output, got: %s", output)
	}
	if !strings.Contains(output, "direction=input") {
		t.Errorf("expected direction=input in output, got: %s", output)
	}
}

func TestLoggerOddArgsIgnoresTrailer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("msg", "key")
	if strings.Contains(buf.String(), "key=") {
		t.Errorf("expected dangling key to be dropped, got: %s", buf.String())
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	t.Cleanup(func() { SetDefault(nil) })

	Debug("debug message")
	if !strings.Contains(buf.String(), "debug message") {
		t.Errorf("expected debug message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message", "code", "ARENA_EXHAUSTED")
	output := buf.String()
	if !strings.Contains(output, "error message") || !strings.Contains(output, "code=ARENA_EXHAUSTED") {
		t.Errorf("expected error message with code, got: %s", output)
	}
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	SetDefault(nil)
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default() returned different instances across calls")
	}
}
