// Package systemd queries and toggles the lifecycle of named system
// services. Absence of a unit is never an error: every managed component is
// optional on a given host.
package systemd

import (
	"context"
	"log/slog"
	"strings"

	"dartup/internal/execx"
	"dartup/internal/logging"
	"dartup/internal/services"
)

// Manager provides the service lifecycle operations the update stages need.
type Manager interface {
	// Exists reports whether a unit definition with the exact name is present.
	Exists(ctx context.Context, unit string) bool
	// IsActive reports whether the unit is currently running.
	IsActive(ctx context.Context, unit string) bool
	// StopIfRunning stops the unit when it exists and is active, reporting
	// whether it was active. Stop failures are swallowed.
	StopIfRunning(ctx context.Context, unit string) bool
	// RestartIfExists restarts the unit when present, falling back to start
	// when restart fails. A missing unit is logged and treated as success.
	RestartIfExists(ctx context.Context, unit string) error
	// DaemonReload reloads the service manager state.
	DaemonReload(ctx context.Context) error
}

// Client implements Manager by shelling out to systemctl.
type Client struct {
	runner execx.Runner
	logger *slog.Logger
}

// NewClient creates a systemctl-backed service manager.
func NewClient(runner execx.Runner, logger *slog.Logger) *Client {
	return &Client{
		runner: runner,
		logger: logging.NewComponentLogger(logger, "systemd"),
	}
}

func (c *Client) systemctl(ctx context.Context, args ...string) (execx.Result, error) {
	return c.runner.Run(ctx, execx.Command{Name: "systemctl", Args: args})
}

func (c *Client) Exists(ctx context.Context, unit string) bool {
	unit = unitName(unit)
	// list-unit-files matches unit definitions even when never started.
	result, err := c.systemctl(ctx, "list-unit-files", unit, "--no-legend", "--no-pager")
	if err != nil {
		c.logger.Warn("systemctl unavailable", logging.Error(err))
		return false
	}
	if !result.Success() {
		return false
	}
	return strings.Contains(result.Stdout, unit)
}

func (c *Client) IsActive(ctx context.Context, unit string) bool {
	result, err := c.systemctl(ctx, "is-active", "--quiet", unitName(unit))
	if err != nil {
		return false
	}
	return result.Success()
}

func (c *Client) StopIfRunning(ctx context.Context, unit string) bool {
	if !c.Exists(ctx, unit) {
		c.logger.Info("unit not installed, nothing to stop", logging.String("unit", unit))
		return false
	}
	if !c.IsActive(ctx, unit) {
		c.logger.Info("unit not active, nothing to stop", logging.String("unit", unit))
		return false
	}

	result, err := c.systemctl(ctx, "stop", unitName(unit))
	if err != nil || !result.Success() {
		// Best effort: the update proceeds against a still-running unit.
		c.logger.Warn("stopping unit failed",
			logging.String("unit", unit),
			logging.String("detail", stopDetail(result, err)),
		)
	} else {
		c.logger.Info("unit stopped", logging.String("unit", unit))
	}
	return true
}

func (c *Client) RestartIfExists(ctx context.Context, unit string) error {
	if !c.Exists(ctx, unit) {
		c.logger.Info("unit not installed, skipping restart", logging.String("unit", unit))
		return nil
	}

	result, err := c.systemctl(ctx, "restart", unitName(unit))
	if err == nil && result.Success() {
		c.logger.Info("unit restarted", logging.String("unit", unit))
		return nil
	}

	c.logger.Warn("restart failed, trying plain start",
		logging.String("unit", unit),
		logging.String("detail", stopDetail(result, err)),
	)
	result, err = c.systemctl(ctx, "start", unitName(unit))
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "systemd", "start", unit, err)
	}
	if !result.Success() {
		return services.Wrap(services.ErrExternalTool, "systemd", "start", unit+": "+result.Output(), nil)
	}
	c.logger.Info("unit started", logging.String("unit", unit))
	return nil
}

func (c *Client) DaemonReload(ctx context.Context) error {
	result, err := c.systemctl(ctx, "daemon-reload")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "systemd", "daemon-reload", "", err)
	}
	if !result.Success() {
		return services.Wrap(services.ErrExternalTool, "systemd", "daemon-reload", result.Output(), nil)
	}
	return nil
}

// unitName appends the .service suffix when the caller passed a bare name.
func unitName(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" || strings.Contains(unit, ".") {
		return unit
	}
	return unit + ".service"
}

func stopDetail(result execx.Result, err error) string {
	if err != nil {
		return err.Error()
	}
	return result.Output()
}
