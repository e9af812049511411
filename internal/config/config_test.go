package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Caller.Service != "darts-caller" || cfg.WLED.Service != "darts-wled" {
		t.Fatalf("unexpected default services: %q %q", cfg.Caller.Service, cfg.WLED.Service)
	}
	if cfg.Paths.BackupRoot != filepath.Join(cfg.Paths.StateDir, "backups") {
		t.Fatalf("backup root not derived from state dir: %q", cfg.Paths.BackupRoot)
	}
	if cfg.Caller.VenvDir != filepath.Join(cfg.Caller.RepoDir, ".venv") {
		t.Fatalf("venv dir not derived from repo dir: %q", cfg.Caller.VenvDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
state_dir = "` + dir + `/state"
log_dir = "` + dir + `/log"

[caller]
repo_dir = "` + dir + `/darts-caller"
service = "darts-caller"
overrides = ["start-custom.sh", "config.ini"]

[web_panel]
base_url = "https://example.test/web/"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if len(cfg.Caller.Overrides) != 2 || cfg.Caller.Overrides[1] != "config.ini" {
		t.Fatalf("overrides not parsed: %v", cfg.Caller.Overrides)
	}
	if cfg.WebPanel.BaseURL != "https://example.test/web" {
		t.Fatalf("base url not trimmed: %q", cfg.WebPanel.BaseURL)
	}
	// Untouched sections keep their defaults.
	if cfg.WLED.RepoDir == "" || cfg.WebPanel.RequestTimeout != 60 {
		t.Fatalf("defaults lost on partial config")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.WebPanel.BaseURL = "ftp://example.test"
	cfg.Caller.Service = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "caller.service") || !strings.Contains(err.Error(), "http(s)") {
		t.Fatalf("unexpected validation message: %v", err)
	}
}

func TestFixedPathsDeriveFromStateDir(t *testing.T) {
	cfg := Default()
	cfg.Paths.StateDir = "/tmp/dartup-state"
	if cfg.LockFile() != "/tmp/dartup-state/dartup.lock" {
		t.Fatalf("lock file: %q", cfg.LockFile())
	}
	if cfg.ResultFile() != "/tmp/dartup-state/update-status.json" {
		t.Fatalf("result file: %q", cfg.ResultFile())
	}
	if cfg.MarkerDir() != "/tmp/dartup-state/once" {
		t.Fatalf("marker dir: %q", cfg.MarkerDir())
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := os.WriteFile(path, []byte(Sample()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
