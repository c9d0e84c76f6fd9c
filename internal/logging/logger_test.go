package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestJSONLoggerCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "copilot", "json", "info")

	logger.Debug("hidden")
	logger.Info("index built", "paragraphs", 12)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "copilot", entry["service"])
	assert.Equal(t, "index built", entry["msg"])
	assert.EqualValues(t, 12, entry["paragraphs"])
}

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "copilot", "text", "debug")
	logger.Debug("tick")
	assert.Contains(t, buf.String(), "msg=tick")
	assert.Contains(t, buf.String(), "service=copilot")
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}
