package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{" WARN ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.in, got, tt.expected)
		}
	}
}

func TestNew(t *testing.T) {
	for _, level := range []string{"info", "debug"} {
		logger, err := New(level, "claims-test")
		if err != nil {
			t.Fatalf("New(%q) failed: %v", level, err)
		}
		if !logger.Core().Enabled(ParseLevel(level)) {
			t.Errorf("expected logger to be enabled at %s", level)
		}
		_ = logger.Sync()
	}
}
