package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories dartup writes to.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	BackupRoot string `toml:"backup_root"`
	LogDir     string `toml:"log_dir"`
}

// Component describes one managed extension installation.
type Component struct {
	RepoDir      string   `toml:"repo_dir"`
	Service      string   `toml:"service"`
	VenvDir      string   `toml:"venv_dir"`
	Requirements string   `toml:"requirements"`
	// Overrides lists repo-relative files that must survive updates
	// byte-identical (custom startup parameters, wrapper scripts).
	Overrides []string `toml:"overrides"`
}

// WebPanel contains download and install settings for the companion web panel.
type WebPanel struct {
	BaseURL         string `toml:"base_url"`
	InstallDir      string `toml:"install_dir"`
	ConfigDir       string `toml:"config_dir"`
	Service         string `toml:"service"`
	ConnectTimeout  int    `toml:"connect_timeout"`
	RequestTimeout  int    `toml:"request_timeout"`
	DownloadRetries int    `toml:"download_retries"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dartup.
type Config struct {
	// EnvFile is an optional environment file loaded before flag parsing
	// (DARTUP_FORCE and friends).
	EnvFile string `toml:"env_file"`

	Paths    Paths     `toml:"paths"`
	Caller   Component `toml:"caller"`
	WLED     Component `toml:"wled"`
	WebPanel WebPanel  `toml:"web_panel"`
	Logging  Logging   `toml:"logging"`
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dartup/config.toml")
}

// Sample returns the embedded sample configuration document.
func Sample() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("dartup.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.BackupRoot, c.Paths.LogDir, c.MarkerDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockFile returns the advisory lock path guarding concurrent runs.
func (c *Config) LockFile() string {
	return filepath.Join(c.Paths.StateDir, "dartup.lock")
}

// ResultFile returns the fixed path of the machine-readable result record.
func (c *Config) ResultFile() string {
	return filepath.Join(c.Paths.StateDir, "update-status.json")
}

// MarkerDir returns the directory holding once-marker sentinel files.
func (c *Config) MarkerDir() string {
	return filepath.Join(c.Paths.StateDir, "once")
}

// LogFile returns the append-only human-readable run log path.
func (c *Config) LogFile() string {
	return filepath.Join(c.Paths.LogDir, "dartup.log")
}

// Components returns the managed extensions keyed by target name.
func (c *Config) Components() map[string]Component {
	return map[string]Component{
		"caller": c.Caller,
		"wled":   c.WLED,
	}
}

func (c *Config) normalize() error {
	var err error
	expand := func(value string) string {
		if err != nil || value == "" {
			return value
		}
		var expanded string
		expanded, err = expandPath(value)
		return expanded
	}

	c.Paths.StateDir = expand(c.Paths.StateDir)
	c.Paths.BackupRoot = expand(c.Paths.BackupRoot)
	c.Paths.LogDir = expand(c.Paths.LogDir)
	c.Caller.RepoDir = expand(c.Caller.RepoDir)
	c.Caller.VenvDir = expand(c.Caller.VenvDir)
	c.WLED.RepoDir = expand(c.WLED.RepoDir)
	c.WLED.VenvDir = expand(c.WLED.VenvDir)
	c.WebPanel.InstallDir = expand(c.WebPanel.InstallDir)
	c.WebPanel.ConfigDir = expand(c.WebPanel.ConfigDir)
	c.EnvFile = expand(c.EnvFile)
	if err != nil {
		return err
	}

	if c.Paths.BackupRoot == "" {
		c.Paths.BackupRoot = filepath.Join(c.Paths.StateDir, "backups")
	}
	if c.Caller.VenvDir == "" && c.Caller.RepoDir != "" {
		c.Caller.VenvDir = filepath.Join(c.Caller.RepoDir, ".venv")
	}
	if c.WLED.VenvDir == "" && c.WLED.RepoDir != "" {
		c.WLED.VenvDir = filepath.Join(c.WLED.RepoDir, ".venv")
	}
	c.WebPanel.BaseURL = strings.TrimRight(strings.TrimSpace(c.WebPanel.BaseURL), "/")
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}
