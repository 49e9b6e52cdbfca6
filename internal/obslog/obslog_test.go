package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/protosalvage/protosalvage/internal/config"
)

func TestNewDefaultsToStderrJSON(t *testing.T) {
	log, closer, err := New(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, log)
	require.NoError(t, closer.Close())
}

func TestNewWritesRotatingFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protosalvage.log")

	log, closer, err := New(config.LoggingConfig{
		Level:      "debug",
		Format:     "text",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, closer.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "hello")
}
