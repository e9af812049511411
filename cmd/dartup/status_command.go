package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"dartup/internal/report"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the result of the last update run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			record, err := report.Load(cfg.ResultFile())
			if errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No update has run yet.")
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(record)
			}

			fmt.Fprintf(out, "Run:     %s\n", record.RunID)
			fmt.Fprintf(out, "Time:    %s\n", record.Timestamp.Local().Format(time.RFC1123))
			fmt.Fprintf(out, "Target:  %s (force: %s)\n", record.Target, yesNo(record.Force))
			if record.BackupPath != "" {
				fmt.Fprintf(out, "Backups: %s\n", record.BackupPath)
			}

			names := make([]string, 0, len(record.Components))
			for name := range record.Components {
				names = append(names, name)
			}
			sort.Strings(names)

			if isatty.IsTerminal(os.Stdout.Fd()) {
				rows := make([][]string, 0, len(names))
				for _, name := range names {
					result := record.Components[name]
					rows = append(rows, []string{
						name,
						string(result.Outcome),
						result.Version,
						yesNo(result.WasActive),
						yesNo(result.Restarted),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Component", "Outcome", "Version", "Was Active", "Restarted"},
					rows,
				))
			} else {
				for _, name := range names {
					result := record.Components[name]
					fmt.Fprintf(out, "%s\t%s\t%s\tactive=%s\trestarted=%s\n",
						name, result.Outcome, result.Version,
						yesNo(result.WasActive), yesNo(result.Restarted))
				}
			}

			if record.Errors != "" {
				fmt.Fprintf(out, "Errors:  %s\n", record.Errors)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw result record")
	return cmd
}
