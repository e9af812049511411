package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dartup/internal/execx"
	"dartup/internal/systemd"
	"dartup/internal/updater"
)

func newWebsyncCommand(ctx *commandContext) *cobra.Command {
	var forceFlag bool

	cmd := &cobra.Command{
		Use:   "websync",
		Short: "Refresh the web panel and its assets from the download site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot("dartup websync"); err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger, err := buildLogger(cfg)
			if err != nil {
				return err
			}

			runner := execx.NewLocal()
			manager := systemd.NewClient(runner, logger)
			orch := updater.New(cfg, manager, runner, logger)

			summary, err := orch.Websync(cmd.Context(), forceEnabled(forceFlag))
			if err != nil {
				// The panel restart failing after a sync is the one fatal
				// websync error; a stale-but-running panel is worse.
				return err
			}
			out := cmd.OutOrStdout()
			if summary == nil {
				fmt.Fprintln(out, "An update is already in progress; nothing to do.")
				return nil
			}

			fmt.Fprintf(out, "Installed %d, skipped %d\n", len(summary.Installed), len(summary.Skipped))
			for _, warning := range summary.Warnings {
				fmt.Fprintf(out, "Warning: %s\n", warning)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceFlag, "force", false, "Download every asset regardless of age")
	return cmd
}
