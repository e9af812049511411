// Package gitrepo synchronizes a local working copy against its upstream and
// classifies the result. Hard-reset to the upstream tracking ref is preferred
// over merge so every run converges to a known remote state; site-specific
// override files are preserved around this by the backup manager.
package gitrepo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"dartup/internal/execx"
	"dartup/internal/logging"
	"dartup/internal/report"
	"dartup/internal/services"
)

// Result describes one repository update.
type Result struct {
	Outcome report.Outcome
	// Before and After are revision fingerprints: a tag description when
	// available, else a short commit hash, else "unknown".
	Before string
	After  string
	Err    error
}

// Updater keeps working copies in sync with their upstreams.
type Updater struct {
	runner execx.Runner
	logger *slog.Logger
	// euid is overridable in tests; ownership repair only runs as root.
	euid func() int
}

// NewUpdater constructs a git-backed repository updater.
func NewUpdater(runner execx.Runner, logger *slog.Logger) *Updater {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Updater{
		runner: runner,
		logger: logger,
		euid:   unix.Geteuid,
	}
}

// Update synchronizes the working copy at path. The label names the
// component in logs and errors.
func (u *Updater) Update(ctx context.Context, path, label string) Result {
	logger := logging.NewComponentLogger(u.logger, label)

	canonical, err := canonicalPath(path)
	if err != nil {
		logger.Info("tree missing, skipping", logging.String("path", path))
		return Result{Outcome: report.OutcomeSkipped}
	}
	if info, err := os.Stat(filepath.Join(canonical, ".git")); err != nil || !info.IsDir() {
		logger.Info("no version-control metadata, skipping", logging.String("path", canonical))
		return Result{Outcome: report.OutcomeSkipped}
	}

	// Git refuses to operate on trees owned by another identity unless the
	// path is registered as safe. Registration failure is not actionable.
	u.git(ctx, "", "config", "--global", "--add", "safe.directory", canonical)

	before := u.fingerprint(ctx, canonical)
	logger.Info("updating working copy",
		logging.String("path", canonical),
		logging.String("revision", before),
	)

	if err := u.fetchWithRepair(ctx, canonical, logger); err != nil {
		return Result{Outcome: report.OutcomeError, Before: before, After: before,
			Err: services.Wrap(services.ErrExternalTool, label, "fetch", "", err)}
	}
	if err := u.integrate(ctx, canonical, logger); err != nil {
		return Result{Outcome: report.OutcomeError, Before: before, After: before,
			Err: services.Wrap(services.ErrExternalTool, label, "integrate", "", err)}
	}

	after := u.fingerprint(ctx, canonical)
	outcome := report.OutcomeUnchanged
	if before != after {
		outcome = report.OutcomeChanged
	}
	logger.Info("working copy updated",
		logging.String(logging.FieldOutcome, string(outcome)),
		logging.String("revision", after),
	)
	return Result{Outcome: outcome, Before: before, After: after}
}

func (u *Updater) git(ctx context.Context, dir string, args ...string) (execx.Result, error) {
	if dir != "" {
		args = append([]string{"-C", dir}, args...)
	}
	return u.runner.Run(ctx, execx.Command{Name: "git", Args: args})
}

// fingerprint prefers a descriptive tag label, falls back to a short commit
// hash, then to the literal "unknown" (fresh clones without history).
func (u *Updater) fingerprint(ctx context.Context, dir string) string {
	if result, err := u.git(ctx, dir, "describe", "--tags", "--always"); err == nil && result.Success() {
		if out := result.Output(); out != "" {
			return out
		}
	}
	if result, err := u.git(ctx, dir, "rev-parse", "--short", "HEAD"); err == nil && result.Success() {
		if out := result.Output(); out != "" {
			return out
		}
	}
	return "unknown"
}

// fetchWithRepair fetches remote updates, repairing the dominant real-world
// failure mode (stale lock files and privilege/ownership mismatches) and
// retrying exactly once.
func (u *Updater) fetchWithRepair(ctx context.Context, dir string, logger *slog.Logger) error {
	err := u.fetch(ctx, dir)
	if err == nil {
		return nil
	}
	logger.Warn("fetch failed, attempting repair", logging.Error(err))

	u.repair(ctx, dir, logger)

	if err := u.fetch(ctx, dir); err != nil {
		return fmt.Errorf("fetch after repair: %w", err)
	}
	logger.Info("fetch succeeded after repair")
	return nil
}

func (u *Updater) fetch(ctx context.Context, dir string) error {
	result, err := u.git(ctx, dir, "fetch", "--all", "--prune")
	if err != nil {
		return err
	}
	if !result.Success() {
		return fmt.Errorf("git fetch: %s", result.Output())
	}
	return nil
}

func (u *Updater) repair(ctx context.Context, dir string, logger *slog.Logger) {
	// Stale fetch state from a killed run blocks every later fetch.
	for _, name := range []string{"index.lock", "FETCH_HEAD", "shallow.lock"} {
		stale := filepath.Join(dir, ".git", name)
		if err := os.Remove(stale); err == nil {
			logger.Info("removed stale git state", logging.String("file", stale))
		}
	}

	if result, err := u.runner.Run(ctx, execx.Command{
		Name: "chmod", Args: []string{"-R", "u+rwX", dir},
	}); err != nil || !result.Success() {
		logger.Warn("permission relax failed", logging.String("path", dir))
	}

	// A root run against a tree previously touched by another user leaves
	// mixed ownership behind; normalize to the tree owner.
	if u.euid() == 0 {
		var stat unix.Stat_t
		if err := unix.Stat(dir, &stat); err == nil {
			owner := fmt.Sprintf("%d:%d", stat.Uid, stat.Gid)
			if result, err := u.runner.Run(ctx, execx.Command{
				Name: "chown", Args: []string{"-R", owner, dir},
			}); err != nil || !result.Success() {
				logger.Warn("ownership normalization failed",
					logging.String("path", dir),
					logging.String("owner", owner),
				)
			}
		}
	}
}

// integrate converges the tree on its upstream: a hard reset when a tracking
// ref is configured, otherwise a rebase pull with automatic stashing.
func (u *Updater) integrate(ctx context.Context, dir string, logger *slog.Logger) error {
	upstream, err := u.git(ctx, dir, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{u}")
	if err != nil {
		return err
	}

	if upstream.Success() && upstream.Output() != "" {
		result, err := u.git(ctx, dir, "reset", "--hard", upstream.Output())
		if err != nil {
			return err
		}
		if !result.Success() {
			return fmt.Errorf("git reset --hard %s: %s", upstream.Output(), result.Output())
		}
		return nil
	}

	logger.Info("no upstream tracking ref, falling back to rebase pull")
	result, err := u.git(ctx, dir, "pull", "--rebase", "--autostash")
	if err != nil {
		return err
	}
	if !result.Success() {
		return fmt.Errorf("git pull --rebase: %s", result.Output())
	}
	return nil
}

// canonicalPath resolves symlinks so ownership and identity checks are
// stable. A missing path is reported as an error for the caller to skip.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
