// Package updater sequences one maintenance run: stop affected services,
// back up override files, sync the working copies, restore overrides,
// reinstall dependencies when something changed, and restart what was
// running. A run context (the result record) is threaded through every stage
// and written exactly once on every exit path.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"dartup/internal/assets"
	"dartup/internal/backup"
	"dartup/internal/config"
	"dartup/internal/execx"
	"dartup/internal/gitrepo"
	"dartup/internal/logging"
	"dartup/internal/pipenv"
	"dartup/internal/remediation"
	"dartup/internal/report"
	"dartup/internal/services"
	"dartup/internal/systemd"
)

// Options selects the scope of one run.
type Options struct {
	// Target is caller, wled, or all (the default).
	Target string
	// Force processes every stage regardless of detected change.
	Force bool
}

// Orchestrator wires the stage components together for update and websync
// runs.
type Orchestrator struct {
	cfg     *config.Config
	systemd systemd.Manager
	repos   *gitrepo.Updater
	deps    *pipenv.Installer
	backups *backup.Manager
	syncer  *assets.Syncer
	fixes   *remediation.Registry
	logger  *slog.Logger
	now     func() time.Time
}

// New builds an orchestrator on top of the given service manager and command
// runner.
func New(cfg *config.Config, manager systemd.Manager, runner execx.Runner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	fixes := remediation.NewRegistry(cfg.MarkerDir(), logger)
	fixes.Add(remediation.Defaults(runner)...)

	return &Orchestrator{
		cfg:     cfg,
		systemd: manager,
		repos:   gitrepo.NewUpdater(runner, logger),
		deps:    pipenv.NewInstaller(runner, logger),
		backups: backup.NewManager(cfg.Paths.BackupRoot, logger),
		syncer:  assets.NewSyncer(cfg, manager, logger),
		fixes:   fixes,
		logger:  logging.NewComponentLogger(logger, "updater"),
		now:     time.Now,
	}
}

// Run executes one extension update run. A nil record with a nil error means
// another run holds the lock and this invocation did nothing, which is not a
// failure.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (record *report.Record, err error) {
	targets, err := selectTargets(opts.Target)
	if err != nil {
		return nil, err
	}
	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "updater", "prepare state directories", "", err)
	}

	release, locked, err := o.acquireLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	defer release()

	record = report.New(opts.Target, opts.Force)
	// The record captures whatever state the run reached, even on an early
	// abort, so it is written unconditionally.
	defer func() {
		if writeErr := record.Write(o.cfg.ResultFile()); writeErr != nil {
			o.logger.Error("result record write failed", logging.Error(writeErr))
			if err == nil {
				err = writeErr
			}
		}
	}()

	o.logger.Info("run started",
		logging.String(logging.FieldTarget, opts.Target),
		logging.Bool("force", opts.Force),
	)

	snapshot, snapErr := o.backups.NewSnapshot(o.now())
	if snapErr != nil {
		record.AppendError("backup snapshot", snapErr)
		o.logger.Warn("running without backup snapshot", logging.Error(snapErr))
	} else {
		record.BackupPath = snapshot.Dir()
	}

	components := o.cfg.Components()
	for _, name := range targets {
		result := o.processTarget(ctx, name, components[name], snapshot, record, opts.Force)
		record.SetComponent(name, result)
	}

	o.logger.Info("run complete",
		logging.String(logging.FieldTarget, opts.Target),
		logging.Bool("errors", record.Errors != ""),
	)
	return record, nil
}

// processTarget runs the full stage sequence for one component. Failures
// accumulate in the record; they never block the other target.
func (o *Orchestrator) processTarget(ctx context.Context, name string, component config.Component, snapshot *backup.Snapshot, record *report.Record, force bool) report.ComponentResult {
	ctx = services.WithTarget(ctx, name)
	logger := logging.WithContext(ctx, o.logger)

	wasActive := o.systemd.StopIfRunning(ctx, component.Service)

	if snapshot != nil {
		for _, override := range component.Overrides {
			if err := snapshot.BackupIfExists(filepath.Join(component.RepoDir, override)); err != nil {
				record.AppendError(name+" backup", err)
			}
		}
	}

	repoResult := o.repos.Update(ctx, component.RepoDir, name)
	if repoResult.Err != nil {
		record.AppendError(name+" update", repoResult.Err)
	}

	if snapshot != nil {
		for _, override := range component.Overrides {
			if err := snapshot.RestoreIfExists(filepath.Join(component.RepoDir, override)); err != nil {
				record.AppendError(name+" restore", err)
			}
		}
	}

	// The wled entry point is an indirection the repo sync may have
	// reverted; regenerate it so user launch parameters keep applying.
	if name == "wled" {
		entry := filepath.Join(component.RepoDir, "start-custom.sh")
		custom := filepath.Join(o.cfg.WebPanel.ConfigDir, "darts-wled", "start-custom.sh")
		if err := backup.EnsureWrapper(entry, custom, logger); err != nil {
			record.AppendError(name+" wrapper", err)
		}
	}

	if o.deps.ShouldInstall(component, repoResult.Outcome, force) {
		if err := o.deps.Ensure(ctx, component, name); err != nil {
			record.AppendError(name+" dependencies", err)
		}
	} else {
		logger.Info("dependency reinstall skipped",
			logging.String(logging.FieldOutcome, string(repoResult.Outcome)),
		)
	}

	restarted := false
	if force || wasActive {
		if err := o.systemd.RestartIfExists(ctx, component.Service); err != nil {
			record.AppendError(name+" restart", err)
		} else {
			restarted = true
		}
	} else {
		logger.Info("restart not owed, leaving service stopped",
			logging.String("unit", component.Service),
		)
	}

	version := repoResult.After
	if version == "" {
		version = repoResult.Before
	}
	return report.ComponentResult{
		Outcome:   repoResult.Outcome,
		Version:   version,
		WasActive: wasActive,
		Restarted: restarted,
	}
}

// Websync refreshes the web panel and its assets. It applies pending host
// fixes first and shares the run lock with Run; a nil summary with a nil
// error means another run holds the lock.
func (o *Orchestrator) Websync(ctx context.Context, force bool) (*assets.Summary, error) {
	if err := o.cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "updater", "prepare state directories", "", err)
	}

	release, locked, err := o.acquireLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	defer release()

	for _, warning := range o.fixes.Apply(ctx) {
		o.logger.Warn("host fix pending", logging.String("detail", warning))
	}

	summary, err := o.syncer.Sync(ctx, assets.Manifest(o.cfg), force)
	if err != nil {
		return summary, err
	}
	o.logger.Info("asset sync complete",
		logging.Int("installed", len(summary.Installed)),
		logging.Int("skipped", len(summary.Skipped)),
		logging.Int("warnings", len(summary.Warnings)),
	)
	return summary, nil
}

// acquireLock takes the non-blocking advisory run lock. Contention is not an
// error: the second invocation reports not-locked and does no work.
func (o *Orchestrator) acquireLock() (release func(), locked bool, err error) {
	lock := flock.New(o.cfg.LockFile())
	locked, err = lock.TryLock()
	if err != nil {
		return nil, false, services.Wrap(services.ErrTransient, "updater", "acquire lock", o.cfg.LockFile(), err)
	}
	if !locked {
		o.logger.Info("another run holds the lock, nothing to do",
			logging.String("lock", o.cfg.LockFile()),
		)
		return nil, false, nil
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			o.logger.Warn("lock release failed", logging.Error(err))
		}
	}, true, nil
}

func selectTargets(target string) ([]string, error) {
	switch target {
	case "", "all":
		return []string{"caller", "wled"}, nil
	case "caller", "wled":
		return []string{target}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "updater", "select target",
			fmt.Sprintf("unknown target %q (expected caller, wled, or all)", target), nil)
	}
}
