package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger("cvemap", LogLevelWarn)
	l.SetOutput(&buf)

	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[cvemap] [WARN] warn 3")
	assert.Contains(t, out, "[cvemap] [ERROR] error 4")
}

func TestDefaultLogger_WithPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger("", LogLevelDebug)
	l.SetOutput(&buf)

	l.Info("no prefix")
	l.WithPrefix("cvemap/nvd").Info("with prefix")

	out := buf.String()
	assert.Contains(t, out, "[INFO] no prefix")
	assert.Contains(t, out, "[cvemap/nvd] [INFO] with prefix")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"INFO", LogLevelInfo},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"off", LogLevelSilent},
		{"bogus", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLogLevel(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		verbose bool
		want    LogLevel
	}{
		{name: "named level", level: "error", want: LogLevelError},
		{name: "verbose overrides level", level: "error", verbose: true, want: LogLevelDebug},
		{name: "default warn", level: "warn", want: LogLevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewLogger("cvemap", tt.level, tt.verbose).level)
		})
	}
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, &NopLogger{}, OrNop(nil))

	l := NewDefaultLogger("", LogLevelInfo)
	assert.Same(t, l, OrNop(l))
}
