// Package assets refreshes the companion web panel and its support files
// from the remote download site. The manifest is a fixed, ordered list
// evaluated in full every run; each entry is independently optional.
package assets

import (
	"os"
	"path/filepath"

	"dartup/internal/config"
)

// Entry maps one remote file to its local destination.
type Entry struct {
	// Remote is the file name appended to the base URL.
	Remote string
	// Dest is the absolute local destination path.
	Dest string
	// Mode is applied to the installed file.
	Mode os.FileMode
	// Text marks entries whose content is normalized (BOM and CRLF
	// stripping) before installation.
	Text bool
	// RestartService names a dependent service restarted when this entry
	// changed. Empty means no dependent restart.
	RestartService string
}

// unitDir is where the panel's service definition installs.
const unitDir = "/etc/systemd/system"

// Manifest returns the fixed asset list for the web panel.
func Manifest(cfg *config.Config) []Entry {
	panel := cfg.WebPanel
	return []Entry{
		{
			Remote: "autodarts-web.py",
			Dest:   filepath.Join(panel.InstallDir, "autodarts-web.py"),
			Mode:   0o755,
			Text:   true,
		},
		{
			Remote: "autodarts-web.service",
			Dest:   filepath.Join(unitDir, "autodarts-web.service"),
			Mode:   0o644,
			Text:   true,
		},
		{
			Remote: "start.sh",
			Dest:   filepath.Join(panel.InstallDir, "start.sh"),
			Mode:   0o755,
			Text:   true,
		},
		{
			Remote:         "start-custom.sh",
			Dest:           filepath.Join(panel.ConfigDir, "darts-wled", "start-custom.sh"),
			Mode:           0o755,
			Text:           true,
			RestartService: cfg.WLED.Service,
		},
		{
			Remote: "templates.tar.gz",
			Dest:   filepath.Join(panel.InstallDir, "templates.tar.gz"),
			Mode:   0o644,
		},
	}
}
