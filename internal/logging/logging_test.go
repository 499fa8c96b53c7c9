package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"info":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"chatty":  slog.LevelDebug,
	}
	for in, want := range cases {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestNewJSONFiltersByLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := Component(New("warn", "json", &buf), "pipeline")

	logger.Info("hidden")
	logger.Warn("shown", "items", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.EqualValues(t, 3, entry["items"])
}

func TestNewTextByDefault(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	New("info", "", &buf).Info("hello", "source", "github")
	assert.Contains(t, buf.String(), "msg=hello source=github")
}
