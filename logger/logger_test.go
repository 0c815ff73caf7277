package logger

import (
	"os"
	"path/filepath"
	"testing"

	"mediaproc/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mediaproc.log")
	log, err := New(config.LogConfig{
		Level:   "info",
		Format:  "json",
		Output:  "file",
		File:    path,
		MaxSize: 1,
	})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New(config.LogConfig{Level: "warn", Format: "json", Output: "file", File: path})
	require.NoError(t, err)

	log.Info("quiet")
	log.Warn("loud")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}
