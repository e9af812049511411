// Package remediation runs one-time host fixes guarded by marker files. Each
// fix executes at most once per marker name; a failed fix leaves no marker so
// the next run tries again, and never blocks the fixes after it.
package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"dartup/internal/execx"
	"dartup/internal/logging"
)

// Remediation is one named host fix.
type Remediation struct {
	Name string
	// Qualifier appends a host property to the marker name (a kernel
	// release, for example) so the fix reruns when that property changes.
	// Nil means the bare name is the marker.
	Qualifier func() string
	Run       func(ctx context.Context) error
}

// Registry applies remediations in order, tracking completion through marker
// files under markerDir.
type Registry struct {
	markerDir string
	logger    *slog.Logger
	items     []Remediation
}

// NewRegistry returns an empty registry writing markers under markerDir.
func NewRegistry(markerDir string, logger *slog.Logger) *Registry {
	return &Registry{
		markerDir: markerDir,
		logger:    logging.NewComponentLogger(logger, "remediation"),
	}
}

// Add appends a remediation. Order is preserved.
func (r *Registry) Add(items ...Remediation) {
	r.items = append(r.items, items...)
}

// Apply runs every pending remediation. Failures are collected as warnings;
// they never stop the remaining items.
func (r *Registry) Apply(ctx context.Context) []string {
	var warnings []string
	for _, item := range r.items {
		marker := r.markerPath(item)
		logger := r.logger.With(logging.String("fix", item.Name))

		if _, err := os.Stat(marker); err == nil {
			logger.Debug("already applied", logging.String("marker", marker))
			continue
		}
		if err := item.Run(ctx); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", item.Name, err))
			logger.Warn("fix failed, will retry next run", logging.Error(err))
			continue
		}
		if err := r.writeMarker(marker); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: record marker: %v", item.Name, err))
			logger.Warn("marker write failed", logging.Error(err))
			continue
		}
		logger.Info("fix applied", logging.String("marker", marker))
	}
	return warnings
}

func (r *Registry) markerPath(item Remediation) string {
	name := item.Name
	if item.Qualifier != nil {
		if suffix := item.Qualifier(); suffix != "" {
			name += "-" + suffix
		}
	}
	return filepath.Join(r.markerDir, sanitize(name)+".done")
}

func (r *Registry) writeMarker(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	return os.WriteFile(path, []byte(stamp), 0o644)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// KernelRelease reports the running kernel version for qualified markers.
func KernelRelease() string {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uname.Release[:])
}

// Defaults returns the stock fixes applied before an asset sync: audio
// playback packages for the caller, and serial-adapter module setup for WLED
// boards, re-run per kernel release.
func Defaults(runner execx.Runner) []Remediation {
	return []Remediation{
		{
			Name: "caller-audio-packages",
			Run: func(ctx context.Context) error {
				return runAll(ctx, runner,
					execx.Command{
						Name: "apt-get",
						Args: []string{"install", "-y", "alsa-utils", "espeak", "mpg123"},
						Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
					},
				)
			},
		},
		{
			Name:      "usb-serial-modules",
			Qualifier: KernelRelease,
			Run: func(ctx context.Context) error {
				return runAll(ctx, runner,
					execx.Command{Name: "modprobe", Args: []string{"ch341"}},
					execx.Command{Name: "udevadm", Args: []string{"trigger", "--subsystem-match=tty"}},
				)
			},
		},
	}
}

func runAll(ctx context.Context, runner execx.Runner, commands ...execx.Command) error {
	for _, cmd := range commands {
		result, err := runner.Run(ctx, cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd.Name, err)
		}
		if !result.Success() {
			return fmt.Errorf("%s exited %d: %s", cmd.Name, result.ExitCode, result.Output())
		}
	}
	return nil
}
