// Package testsupport provides shared helpers for package tests: a config
// builder seeded with per-test temp directories and a scripted command
// runner fake.
package testsupport

import (
	"path/filepath"
	"testing"

	"dartup/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.EnvFile = ""
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.BackupRoot = filepath.Join(base, "backups")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Caller.RepoDir = filepath.Join(base, "darts-caller")
	cfg.Caller.VenvDir = filepath.Join(base, "darts-caller", ".venv")
	cfg.WLED.RepoDir = filepath.Join(base, "darts-wled")
	cfg.WLED.VenvDir = filepath.Join(base, "darts-wled", ".venv")
	cfg.WebPanel.InstallDir = filepath.Join(base, "autodarts-web")
	cfg.WebPanel.ConfigDir = filepath.Join(base, "panel-config")

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithPanelBaseURL overrides the web panel download source.
func WithPanelBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.WebPanel.BaseURL = url
	}
}
