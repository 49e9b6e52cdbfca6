package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "hash-suffix", cfg.Conflict.Strategy)
	require.Equal(t, "proto", cfg.Scan.Format)
	require.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conflict.Strategy = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Format = "xml"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeJobs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Jobs = -1
	require.Error(t, cfg.Validate())
}

func TestLoadReadsYAMLFileWithEnvExpansion(t *testing.T) {
	t.Setenv("PROTOSALVAGE_TEST_OUTDIR", "/tmp/expanded")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scan:
  output_dir: ${PROTOSALVAGE_TEST_OUTDIR}
  max_descriptors: 10
conflict:
  strategy: source-suffix
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/expanded", cfg.Scan.OutputDir)
	require.Equal(t, 10, cfg.Scan.MaxDescriptors)
	require.Equal(t, "source-suffix", cfg.Conflict.Strategy)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("PROTOSALVAGE_CONFLICT_STRATEGY", "skip-conflicts")
	t.Setenv("PROTOSALVAGE_VERIFY", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "skip-conflicts", cfg.Conflict.Strategy)
	require.True(t, cfg.Verify.Enabled)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
