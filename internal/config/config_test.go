package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drivemirror/internal/config"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, 4, cfg.MaxConcurrentDownloads)
	assert.False(t, cfg.DeleteRemovedFiles)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 5, cfg.RetryBaseDelaySeconds)
}

func TestValidateRequiresBaseDirectory(t *testing.T) {
	cfg := config.DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_directory")
}

func TestValidateRejectsBadBounds(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseDirectory = "/tmp/mirror"
	cfg.MaxConcurrentDownloads = 0
	cfg.RetryAttempts = 0
	cfg.RetryBaseDelaySeconds = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_downloads")
	assert.Contains(t, err.Error(), "retry_attempts")
	assert.Contains(t, err.Error(), "retry_base_delay_seconds")
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	contents := `
base_directory = "/mnt/mirror"
max_concurrent_downloads = 8

[export_formats]
"application/vnd.google-apps.document" = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/mnt/mirror", cfg.BaseDirectory)
	assert.Equal(t, 8, cfg.MaxConcurrentDownloads)
	assert.Equal(t, 3, cfg.RetryAttempts, "unset fields keep defaults")
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		cfg.ExportFormats["application/vnd.google-apps.document"],
	)
}

func TestLoadIgnoresUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	contents := `
base_directory = "/mnt/mirror"
this_key_does_not_exist = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/mirror", cfg.BaseDirectory)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxConcurrentDownloads)
	assert.Empty(t, cfg.BaseDirectory)
}
