// Package config loads and validates the Sync Engine's configuration
// (§6.2): a single TOML decode layered over DefaultConfig(), following the
// internal/config defaults-layering style, generalized to this engine's
// smaller option set.
package config

import (
	"errors"
	"fmt"
)

// Default values, layer 0 of the defaults-then-file override chain, mirroring
// the prior engine's internal/config/defaults.go naming.
const (
	defaultMaxConcurrentDownloads = 4
	defaultDeleteRemovedFiles     = false
	defaultRetryAttempts          = 3
	defaultRetryBaseDelaySeconds  = 5
)

// Config is the Sync Engine's full configuration surface, per §6.2.
type Config struct {
	BaseDirectory          string            `toml:"base_directory"`
	ExportFormats          map[string]string `toml:"export_formats"`
	MaxConcurrentDownloads int               `toml:"max_concurrent_downloads"`
	DeleteRemovedFiles     bool              `toml:"delete_removed_files"`
	RetryAttempts          int               `toml:"retry_attempts"`
	RetryBaseDelaySeconds  int               `toml:"retry_base_delay_seconds"`
}

// DefaultConfig returns a Config populated with default values for every
// optional field. BaseDirectory is required and left empty; Validate will
// reject it.
func DefaultConfig() *Config {
	return &Config{
		ExportFormats:          make(map[string]string),
		MaxConcurrentDownloads: defaultMaxConcurrentDownloads,
		DeleteRemovedFiles:     defaultDeleteRemovedFiles,
		RetryAttempts:          defaultRetryAttempts,
		RetryBaseDelaySeconds:  defaultRetryBaseDelaySeconds,
	}
}

// Validate aggregates all violations into a single joined error, following
// the prior engine's internal/config/validate.go style.
func (c *Config) Validate() error {
	var errs []error

	if c.BaseDirectory == "" {
		errs = append(errs, errors.New("config: base_directory is required"))
	}

	if c.MaxConcurrentDownloads < 1 {
		errs = append(errs, fmt.Errorf("config: max_concurrent_downloads must be >= 1, got %d", c.MaxConcurrentDownloads))
	}

	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("config: retry_attempts must be >= 1, got %d", c.RetryAttempts))
	}

	if c.RetryBaseDelaySeconds < 1 {
		errs = append(errs, fmt.Errorf("config: retry_base_delay_seconds must be >= 1, got %d", c.RetryBaseDelaySeconds))
	}

	return errors.Join(errs...)
}

// DefaultExportExtensions maps common export target mime types to the file
// extension FileOps appends when materializing an exported item, following
// the prior engine's handling of Workspace-style renditions. This table is
// engine-owned (not user-configurable) since it reflects a fixed mapping
// between target mime type and filename suffix, independent of which
// source-to-target pairs a deployment chooses in ExportFormats.
func DefaultExportExtensions() map[string]string {
	return map[string]string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
		"application/pdf": ".pdf",
		"image/png":       ".png",
		"text/plain":      ".txt",
	}
}
