package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agent.log")
	cfg := &config.Config{Log: config.LogConfig{File: path, Level: "info"}}

	logger, err := New(cfg, false)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("turn finished", zap.String("outcome", "answered"))
	_ = logger.Sync()

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "turn finished", entries[0]["msg"])
	assert.Equal(t, "answered", entries[0]["outcome"])
	assert.Equal(t, "info", entries[0]["level"])
}

func TestNew_VerboseEnablesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	cfg := &config.Config{Log: config.LogConfig{File: path, Level: "warn"}}

	logger, err := New(cfg, true)
	require.NoError(t, err)
	logger.Debug("classified message", zap.String("type", "THOUGHT"))
	_ = logger.Sync()

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "debug", entries[0]["level"])
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	cfg := &config.Config{Log: config.LogConfig{File: path, Level: "chatty"}}

	logger, err := New(cfg, false)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("shown")
	_ = logger.Sync()

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0]["msg"])
}
