package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

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
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestNew_WritesJSONWithServiceField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stm.log")
	log, _, err := New(Config{Level: "debug", OutputFile: path, ServiceName: "bank"})
	require.NoError(t, err)

	log.Debug("parked", zap.Int("watched", 2))
	require.NoError(t, log.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	require.Equal(t, "DEBUG", entries[0]["level"])
	require.Equal(t, "bank", entries[0]["service"])
	require.Equal(t, float64(2), entries[0]["watched"])
}

func TestNew_DefaultsAndLevelToggle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stm.log")
	log, level, err := New(Config{Level: "not-a-level", OutputFile: path})
	require.NoError(t, err)
	require.Equal(t, zap.InfoLevel, level.Level())

	log.Debug("hidden")
	level.SetLevel(zap.DebugLevel)
	log.Debug("shown")
	require.NoError(t, log.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	require.Equal(t, "shown", entries[0]["msg"])
	require.Equal(t, DefaultServiceName, entries[0]["service"])
}

func TestNew_BadOutputFile(t *testing.T) {
	_, _, err := New(Config{OutputFile: filepath.Join(t.TempDir(), "missing", "stm.log")})
	require.Error(t, err)
}
