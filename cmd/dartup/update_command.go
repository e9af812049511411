package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dartup/internal/execx"
	"dartup/internal/systemd"
	"dartup/internal/updater"
)

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var forceFlag bool

	cmd := &cobra.Command{
		Use:   "update [target]",
		Short: "Update the extension working copies (caller, wled, or all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireRoot("dartup update"); err != nil {
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

			target := "all"
			if len(args) == 1 {
				target = args[0]
			}

			runner := execx.NewLocal()
			manager := systemd.NewClient(runner, logger)
			orch := updater.New(cfg, manager, runner, logger)

			record, err := orch.Run(cmd.Context(), updater.Options{
				Target: target,
				Force:  forceEnabled(forceFlag),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if record == nil {
				fmt.Fprintln(out, "An update is already in progress; nothing to do.")
				return nil
			}

			for _, name := range []string{"caller", "wled"} {
				result, ok := record.Components[name]
				if !ok {
					continue
				}
				fmt.Fprintf(out, "%-7s %-10s %s\n", name, result.Outcome, result.Version)
			}
			if record.Errors != "" {
				// Per-target failures are reported, not fatal; the other
				// targets still completed.
				fmt.Fprintf(out, "Completed with errors: %s\n", record.Errors)
			}
			fmt.Fprintf(out, "Result written to %s\n", cfg.ResultFile())
			return nil
		},
	}

	cmd.Flags().BoolVar(&forceFlag, "force", false, "Process every stage regardless of detected change")
	return cmd
}
