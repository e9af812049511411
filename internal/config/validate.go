package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values no run can proceed without.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		problems = append(problems, "paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	for name, component := range c.Components() {
		if strings.TrimSpace(component.RepoDir) == "" {
			problems = append(problems, fmt.Sprintf("%s.repo_dir must be set", name))
		}
		if strings.TrimSpace(component.Service) == "" {
			problems = append(problems, fmt.Sprintf("%s.service must be set", name))
		}
	}
	if strings.TrimSpace(c.WebPanel.BaseURL) == "" {
		problems = append(problems, "web_panel.base_url must be set")
	} else if !strings.HasPrefix(c.WebPanel.BaseURL, "http://") && !strings.HasPrefix(c.WebPanel.BaseURL, "https://") {
		problems = append(problems, "web_panel.base_url must be an http(s) URL")
	}
	if strings.TrimSpace(c.WebPanel.InstallDir) == "" {
		problems = append(problems, "web_panel.install_dir must be set")
	}
	if strings.TrimSpace(c.WebPanel.Service) == "" {
		problems = append(problems, "web_panel.service must be set")
	}
	if c.WebPanel.ConnectTimeout <= 0 {
		problems = append(problems, "web_panel.connect_timeout must be positive")
	}
	if c.WebPanel.RequestTimeout <= 0 {
		problems = append(problems, "web_panel.request_timeout must be positive")
	}
	if c.WebPanel.DownloadRetries < 0 {
		problems = append(problems, "web_panel.download_retries must not be negative")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
