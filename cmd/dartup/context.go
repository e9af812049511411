package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"golang.org/x/sys/unix"

	"dartup/internal/config"
	"dartup/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		// The env file carries host-local toggles (DARTUP_FORCE and
		// friends); already-set variables win.
		if cfg.EnvFile != "" {
			if err := godotenv.Load(cfg.EnvFile); err != nil && !os.IsNotExist(err) {
				c.configErr = fmt.Errorf("load env file %s: %w", cfg.EnvFile, err)
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// buildLogger opens the run log alongside stdout. The caller must have
// ensured the log directory exists.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogFile()},
	})
}

// forceEnabled combines the --force flag with the DARTUP_FORCE environment
// toggle.
func forceEnabled(flag bool) bool {
	if flag {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DARTUP_FORCE"))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// requireRoot guards the mutating commands: they stop services, rewrite
// system trees, and install unit files.
func requireRoot(operation string) error {
	if unix.Geteuid() != 0 {
		return fmt.Errorf("%s must run as root", operation)
	}
	return nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
