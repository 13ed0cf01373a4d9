package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Console: &buf})
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud", zap.String("thread_id", "t1"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, "t1")
}

func TestNew_ProductionConsoleIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Production: true, Console: &buf})
	require.NoError(t, err)

	logger.Info("hello", zap.Int("count", 2))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 2, entry["count"])
}

func TestNew_FileCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marginalia.log")
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", File: path, Console: &buf})
	require.NoError(t, err)

	logger.Debug("console only")
	logger.Info("both")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"both"`)
	assert.Contains(t, buf.String(), "console only")
}
