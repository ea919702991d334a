package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_ValidLevelsAndFormats(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug json", "debug", "json"},
		{"info json", "info", "json"},
		{"warn console", "warn", "console"},
		{"error console", "error", "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)

			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("test log message")
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	for _, level := range []string{"invalid", "INFO", "trace", ""} {
		t.Run(level, func(t *testing.T) {
			logger, err := NewLogger(level, "json")

			assert.Error(t, err)
			assert.Nil(t, logger)
			assert.Contains(t, err.Error(), "invalid log level")
		})
	}
}

func TestNewLogger_LevelEnabled(t *testing.T) {
	tests := []struct {
		level    string
		zapLevel zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(tt.level, "json")
			require.NoError(t, err)

			assert.True(t, logger.Core().Enabled(tt.zapLevel))
			if tt.zapLevel > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.zapLevel-1))
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	Component(base, "playlist").Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "playlist", logs.All()[0].LoggerName)

	// nil base falls back to a no-op logger
	assert.NotPanics(t, func() { Component(nil, "x").Info("dropped") })
}
