package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/erp/channelsync/internal/application/integrity"
)

func newValidateCommand(root *rootOptions) *cobra.Command {
	var (
		checks      []string
		minSeverity string
		fix         bool
		format      string
		output      string
		batchSize   int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check links and attribute assignments, optionally repairing them",
		Long: "Runs the integrity checks and prints a report. The command exits with status 2 when\n" +
			"a critical issue was found.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			severity, err := integrity.ParseSeverity(minSeverity)
			if err != nil {
				return err
			}
			ids := make([]integrity.CheckID, len(checks))
			for i, c := range checks {
				ids[i] = integrity.CheckID(c)
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				if batchSize <= 0 {
					batchSize = app.Config.Validation.BatchSize
				}
				report, err := app.Validator.Run(ctx, integrity.Options{
					Checks:      ids,
					MinSeverity: severity,
					Fix:         fix,
					BatchSize:   batchSize,
				})
				if err != nil {
					return err
				}

				w, closeOut, err := openOutput(cmd.OutOrStdout(), output)
				if err != nil {
					return err
				}
				if format == formatJSON {
					err = report.WriteJSON(w)
				} else {
					err = report.WriteText(w)
				}
				if cerr := closeOut(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				if report.Failed() {
					return ErrRunFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&checks, "check", nil, "check to run (repeatable); default every check")
	cmd.Flags().StringVar(&minSeverity, "min-severity", string(integrity.SeverityInfo), "lowest severity reported: info, warning or critical")
	cmd.Flags().BoolVar(&fix, "fix", false, "repair fixable issues")
	cmd.Flags().StringVar(&format, "format", formatConsole, "output format: console or json")
	cmd.Flags().StringVar(&output, "output", "", "write the report to this file instead of stdout")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per page (default validation.batch_size)")
	return cmd
}
