// Package pipenv keeps each extension's isolated Python environment current.
// Reinstallation is strictly conditional on detected change so routine runs
// skip the expensive dependency resolution.
package pipenv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"dartup/internal/config"
	"dartup/internal/execx"
	"dartup/internal/logging"
	"dartup/internal/report"
	"dartup/internal/services"
)

// heavyPackages are optional dependencies that routinely force a long
// build-from-source on small boards; the retry pass filters them so one
// incompatible package does not block the rest of the manifest.
var heavyPackages = map[string]struct{}{
	"pyaudio":       {},
	"opencv-python": {},
	"rpi.gpio":      {},
}

// relaxPinsFrom maps package names to the Python minor version from which a
// strict `==` pin is dropped (no prebuilt wheels for newer runtimes).
var relaxPinsFrom = map[string]int{
	"numpy": 12,
}

var requirementLine = regexp.MustCompile(`^\s*([A-Za-z0-9._-]+)\s*(==\s*\S+)?`)

// Installer ensures component virtualenvs have their declared dependencies.
type Installer struct {
	runner execx.Runner
	logger *slog.Logger
}

// NewInstaller constructs a pip/venv-backed dependency installer.
func NewInstaller(runner execx.Runner, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Installer{runner: runner, logger: logger}
}

// ShouldInstall applies the skip policy: reinstall only when forced, when no
// environment exists yet, or when the repository update detected change.
func (i *Installer) ShouldInstall(component config.Component, outcome report.Outcome, force bool) bool {
	if force {
		return true
	}
	if _, err := os.Stat(component.VenvDir); err != nil {
		return true
	}
	return outcome == report.OutcomeChanged
}

// Ensure creates the virtualenv when absent and installs the dependency
// manifest. Absence of a manifest is not an error.
func (i *Installer) Ensure(ctx context.Context, component config.Component, label string) error {
	logger := logging.NewComponentLogger(i.logger, label)

	if _, err := os.Stat(component.VenvDir); err != nil {
		logger.Info("creating virtualenv", logging.String("venv", component.VenvDir))
		result, err := i.runner.Run(ctx, execx.Command{
			Name: "python3", Args: []string{"-m", "venv", component.VenvDir},
		})
		if err != nil {
			return services.Wrap(services.ErrExternalTool, label, "create venv", "", err)
		}
		if !result.Success() {
			return services.Wrap(services.ErrExternalTool, label, "create venv", result.Output(), nil)
		}
	}

	// Tooling upgrade is best effort; an old pip still installs.
	if result, err := i.pip(ctx, component, "install", "--upgrade", "pip"); err != nil || !result.Success() {
		logger.Warn("pip self-upgrade failed", logging.String("detail", detail(result, err)))
	}

	manifest := component.Requirements
	if manifest == "" {
		manifest = "requirements.txt"
	}
	manifestPath := filepath.Join(component.RepoDir, manifest)
	if _, err := os.Stat(manifestPath); err != nil {
		logger.Info("no dependency manifest, nothing to install", logging.String("manifest", manifestPath))
		return nil
	}

	prepared, cleanup, err := i.prepareManifest(ctx, manifestPath, logger)
	if err != nil {
		logger.Warn("manifest rewrite failed, using original", logging.Error(err))
		prepared = manifestPath
	}
	if cleanup != nil {
		defer cleanup()
	}

	result, err := i.pip(ctx, component, "install", "-r", prepared)
	if err == nil && result.Success() {
		logger.Info("dependencies installed", logging.String("manifest", manifest))
		return nil
	}
	logger.Warn("install failed, retrying without heavy optional packages",
		logging.String("detail", detail(result, err)),
	)

	filtered, filterCleanup, filterErr := filterManifest(prepared)
	if filterErr != nil {
		return services.Wrap(services.ErrExternalTool, label, "install dependencies", "", filterErr)
	}
	defer filterCleanup()

	result, err = i.pip(ctx, component, "install", "-r", filtered)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, label, "install dependencies", "retry failed", err)
	}
	if !result.Success() {
		return services.Wrap(services.ErrExternalTool, label, "install dependencies", result.Output(), nil)
	}
	logger.Info("dependencies installed with heavy packages filtered")
	return nil
}

func (i *Installer) pip(ctx context.Context, component config.Component, args ...string) (execx.Result, error) {
	pipPath := filepath.Join(component.VenvDir, "bin", "pip")
	return i.runner.Run(ctx, execx.Command{Name: pipPath, Args: args, Dir: component.RepoDir})
}

// prepareManifest relaxes overly strict pins that would force a source build
// on the detected runtime. Returns the path to install from and an optional
// cleanup for the rewritten copy.
func (i *Installer) prepareManifest(ctx context.Context, manifestPath string, logger *slog.Logger) (string, func(), error) {
	minor, ok := i.pythonMinor(ctx)
	if !ok {
		return manifestPath, nil, nil
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return manifestPath, nil, err
	}

	lines := strings.Split(string(data), "\n")
	rewritten := false
	for idx, line := range lines {
		name, pinned := parseRequirement(line)
		if name == "" || !pinned {
			continue
		}
		if from, found := relaxPinsFrom[strings.ToLower(name)]; found && minor >= from {
			lines[idx] = name
			rewritten = true
			logger.Info("relaxed pinned dependency for current runtime",
				logging.String("package", name),
				logging.Int("python_minor", minor),
			)
		}
	}
	if !rewritten {
		return manifestPath, nil, nil
	}

	tmp, err := writeTempManifest(filepath.Dir(manifestPath), lines)
	if err != nil {
		return manifestPath, nil, err
	}
	return tmp, func() { os.Remove(tmp) }, nil
}

// pythonMinor parses "Python 3.11.2" into 11.
func (i *Installer) pythonMinor(ctx context.Context) (int, bool) {
	result, err := i.runner.Run(ctx, execx.Command{Name: "python3", Args: []string{"--version"}})
	if err != nil || !result.Success() {
		return 0, false
	}
	fields := strings.Fields(result.Output())
	if len(fields) < 2 {
		return 0, false
	}
	parts := strings.Split(fields[1], ".")
	if len(parts) < 2 {
		return 0, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return minor, true
}

func filterManifest(manifestPath string) (string, func(), error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", nil, err
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		name, _ := parseRequirement(line)
		if name != "" {
			if _, heavy := heavyPackages[strings.ToLower(name)]; heavy {
				continue
			}
		}
		kept = append(kept, line)
	}

	tmp, err := writeTempManifest(filepath.Dir(manifestPath), kept)
	if err != nil {
		return "", nil, err
	}
	return tmp, func() { os.Remove(tmp) }, nil
}

func parseRequirement(line string) (name string, pinned bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "-") {
		return "", false
	}
	match := requirementLine.FindStringSubmatch(trimmed)
	if match == nil {
		return "", false
	}
	return match[1], match[2] != ""
}

func writeTempManifest(dir string, lines []string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".requirements-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.WriteString(strings.Join(lines, "\n")); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func detail(result execx.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	if out := result.Output(); out != "" {
		return out
	}
	return fmt.Sprintf("exit status %d", result.ExitCode)
}
