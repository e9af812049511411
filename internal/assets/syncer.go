package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dartup/internal/config"
	"dartup/internal/fileutil"
	"dartup/internal/logging"
	"dartup/internal/services"
	"dartup/internal/systemd"
)

const backupStamp = "20060102T150405"

// Summary reports what a sync run did per manifest entry.
type Summary struct {
	Installed []string
	Skipped   []string
	Warnings  []string
}

// Syncer downloads the manifest and installs freshly fetched entries.
type Syncer struct {
	cfg      *config.Config
	download *downloader
	systemd  systemd.Manager
	logger   *slog.Logger
	now      func() time.Time
}

// NewSyncer constructs the web-panel asset syncer.
func NewSyncer(cfg *config.Config, manager systemd.Manager, logger *slog.Logger) *Syncer {
	return &Syncer{
		cfg:      cfg,
		download: newDownloader(cfg.WebPanel),
		systemd:  manager,
		logger:   logging.NewComponentLogger(logger, "assets"),
		now:      time.Now,
	}
}

// Sync processes every manifest entry, installs what was freshly fetched,
// restarts dependent services for changed entries, and finally restarts the
// web panel. The returned error is non-nil only for the fatal case: the
// panel restart failing after a sync.
func (s *Syncer) Sync(ctx context.Context, entries []Entry, force bool) (*Summary, error) {
	summary := &Summary{}
	fetched := make(map[string][]byte, len(entries))

	for _, entry := range entries {
		outcome, body, err := s.download.fetch(ctx, entry, force)
		logger := s.logger.With(
			logging.String("remote", entry.Remote),
			logging.String(logging.FieldOutcome, outcome.String()),
		)
		switch outcome {
		case fetchFetched:
			if entry.Text {
				body, err = normalizeText(body)
				if err != nil {
					summary.warn(logger, entry, "text normalization failed", err)
					continue
				}
			}
			fetched[entry.Remote] = body
			logger.Info("asset downloaded", logging.Int("bytes", len(body)))
		case fetchNotModified:
			summary.Skipped = append(summary.Skipped, entry.Remote)
			logger.Info("asset up to date")
		case fetchNotFound:
			// Absence in the remote manifest is not fatal; each entry is
			// independently optional.
			summary.Skipped = append(summary.Skipped, entry.Remote)
			logger.Info("asset not present remotely, skipping")
		case fetchEmpty:
			summary.warn(logger, entry, "empty download discarded", nil)
		default:
			summary.warn(logger, entry, "download failed", err)
		}
	}

	restartUnits := map[string]struct{}{}
	unitChanged := false
	for _, entry := range entries {
		body, ok := fetched[entry.Remote]
		if !ok {
			continue
		}
		changed, err := s.install(entry, body)
		if err != nil {
			summary.warn(s.logger, entry, "install failed", err)
			continue
		}
		summary.Installed = append(summary.Installed, entry.Remote)
		if changed && entry.RestartService != "" {
			restartUnits[entry.RestartService] = struct{}{}
		}
		if changed && strings.HasSuffix(entry.Dest, ".service") {
			unitChanged = true
		}
	}

	// Restarts below must see a freshly installed unit definition.
	if unitChanged {
		if err := s.systemd.DaemonReload(ctx); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("daemon-reload: %v", err))
			s.logger.Warn("daemon reload failed", logging.Error(err))
		}
	}

	for unit := range restartUnits {
		if err := s.systemd.RestartIfExists(ctx, unit); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("restart %s: %v", unit, err))
			s.logger.Warn("dependent service restart failed",
				logging.String("unit", unit),
				logging.Error(err),
			)
		}
	}

	// A running-but-stale panel is worse than a failed run: escalate.
	if err := s.systemd.RestartIfExists(ctx, s.cfg.WebPanel.Service); err != nil {
		return summary, services.Wrap(services.ErrExternalTool, "assets", "restart web panel", "", err)
	}
	s.logger.Info("web panel restarted", logging.String("unit", s.cfg.WebPanel.Service))
	return summary, nil
}

// install backs up any existing destination with a timestamp suffix and
// atomically replaces it. It reports whether the content actually changed.
func (s *Syncer) install(entry Entry, body []byte) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(entry.Dest), 0o755); err != nil {
		return false, fmt.Errorf("prepare destination: %w", err)
	}

	if prev, err := os.ReadFile(entry.Dest); err == nil {
		if string(prev) == string(body) {
			// Forced fetches can deliver identical content; keep the
			// destination untouched so dependent restarts stay accurate.
			return false, nil
		}
		backupPath := fmt.Sprintf("%s.%s.bak", entry.Dest, s.now().UTC().Format(backupStamp))
		if err := fileutil.CopyPreserving(entry.Dest, backupPath); err != nil {
			return false, fmt.Errorf("back up previous version: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(entry.Dest), ".dartup-asset-*")
	if err != nil {
		return false, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return false, err
	}
	mode := entry.Mode
	if mode == 0 {
		mode = 0o644
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmpPath, entry.Dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Summary) warn(logger *slog.Logger, entry Entry, message string, err error) {
	text := fmt.Sprintf("%s: %s", entry.Remote, message)
	if err != nil {
		text += ": " + err.Error()
	}
	m.Warnings = append(m.Warnings, text)
	if err != nil {
		logger.Warn(message, logging.String("remote", entry.Remote), logging.Error(err))
	} else {
		logger.Warn(message, logging.String("remote", entry.Remote))
	}
}
