// Package backup preserves site-specific override files across destructive
// repository syncs. Each run gets a timestamped snapshot directory under the
// backup root; snapshots are never pruned automatically so manual rollback
// stays possible.
package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dartup/internal/fileutil"
	"dartup/internal/logging"
)

const snapshotStamp = "20060102T150405"

// Manager creates per-run snapshots under a fixed root.
type Manager struct {
	root   string
	logger *slog.Logger
}

// NewManager constructs a backup manager rooted at root.
func NewManager(root string, logger *slog.Logger) *Manager {
	return &Manager{
		root:   root,
		logger: logging.NewComponentLogger(logger, "backup"),
	}
}

// NewSnapshot creates the timestamped snapshot directory for one run.
func (m *Manager) NewSnapshot(now time.Time) (*Snapshot, error) {
	dir := filepath.Join(m.root, now.UTC().Format(snapshotStamp))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	m.logger.Info("snapshot created", logging.String("path", dir))
	return &Snapshot{dir: dir, logger: m.logger}, nil
}

// Snapshot is one run's backup tree. Files are stored under their full
// original path so restores are unambiguous.
type Snapshot struct {
	dir    string
	logger *slog.Logger
}

// Dir returns the snapshot directory path for the result record.
func (s *Snapshot) Dir() string { return s.dir }

func (s *Snapshot) stored(src string) string {
	return filepath.Join(s.dir, strings.TrimPrefix(src, string(os.PathSeparator)))
}

// BackupIfExists copies src into the snapshot, preserving attributes and
// creating parent directories. A missing source is logged and skipped.
func (s *Snapshot) BackupIfExists(src string) error {
	if _, err := os.Stat(src); err != nil {
		s.logger.Info("override file absent, nothing to back up", logging.String("file", src))
		return nil
	}
	dst := s.stored(src)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prepare backup path: %w", err)
	}
	if err := fileutil.CopyPreserving(src, dst); err != nil {
		return fmt.Errorf("back up %s: %w", src, err)
	}
	s.logger.Info("override file backed up", logging.String("file", src))
	return nil
}

// RestoreIfExists copies a previously captured backup back over the live
// location. Missing backups (the source never existed) are skipped.
func (s *Snapshot) RestoreIfExists(src string) error {
	stored := s.stored(src)
	if _, err := os.Stat(stored); err != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		return fmt.Errorf("prepare restore path: %w", err)
	}
	if err := fileutil.CopyPreserving(stored, src); err != nil {
		return fmt.Errorf("restore %s: %w", src, err)
	}
	s.logger.Info("override file restored", logging.String("file", src))
	return nil
}

// EnsureWrapper regenerates the indirection script at entryPath so the
// component's live entry point simply delegates to the user-editable custom
// script, and marks both executable. The repo sync may have reverted the
// entry point to its upstream version.
func EnsureWrapper(entryPath, customPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	body := fmt.Sprintf("#!/bin/bash\n# Managed by dartup. Put local changes in %s.\nexec %q \"$@\"\n", customPath, customPath)
	if err := os.MkdirAll(filepath.Dir(entryPath), 0o755); err != nil {
		return fmt.Errorf("prepare wrapper path: %w", err)
	}
	if err := os.WriteFile(entryPath, []byte(body), 0o755); err != nil {
		return fmt.Errorf("write wrapper %s: %w", entryPath, err)
	}
	if err := os.Chmod(entryPath, 0o755); err != nil {
		return fmt.Errorf("chmod wrapper: %w", err)
	}
	if _, err := os.Stat(customPath); err == nil {
		if err := os.Chmod(customPath, 0o755); err != nil {
			return fmt.Errorf("chmod custom script: %w", err)
		}
	} else {
		logger.Warn("custom script missing, wrapper will fail until it exists",
			logging.String("file", customPath),
		)
	}
	return nil
}
