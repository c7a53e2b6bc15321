package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/channelsync/internal/application/linkmigration"
)

func newMigrateLinksCommand(root *rootOptions) *cobra.Command {
	var (
		accounts  []string
		dryRun    bool
		batchSize int
		format    string
	)
	cmd := &cobra.Command{
		Use:   "migrate-links",
		Short: "Move legacy product mappings into the link registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				ids, err := app.ResolveAccounts(ctx, accounts)
				if err != nil {
					return err
				}
				if batchSize <= 0 {
					batchSize = app.Config.Migration.BatchSize
				}
				result, err := app.LinkMigrator.Run(ctx, linkmigration.Options{
					AccountIDs: ids,
					BatchSize:  batchSize,
					DryRun:     dryRun,
				})
				if err != nil {
					return err
				}
				if format == formatJSON {
					err = writeJSON(cmd.OutOrStdout(), result)
				} else {
					err = writeMigrationResult(cmd.OutOrStdout(), result)
				}
				if err != nil {
					return err
				}
				if result.HasFailures() {
					return ErrRunFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "account name or id (repeatable); default every account")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run every chunk and roll it back")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "mappings per transaction (default migration.batch_size)")
	cmd.Flags().StringVar(&format, "format", formatConsole, "output format: console or json")
	return cmd
}

func writeMigrationResult(w io.Writer, r *linkmigration.Result) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Link migration finished in %s (dry run=%t)\n\n", r.Duration.Round(time.Millisecond), r.DryRun)
	fmt.Fprintln(tw, "ACCOUNT\tMAPPINGS\tMIGRATED\tUNCHANGED\tPRODUCT LINKS\tVARIANT LINKS\tPLACEHOLDERS\tCONFLICTS\tFAILED CHUNKS")
	for _, a := range r.Accounts {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n", a.AccountName, a.Mappings, a.Migrated, a.Unchanged,
			a.ProductLinks, a.VariantLinks, a.Placeholders, len(a.Conflicts), len(a.FailedChunks))
	}
	for _, a := range r.Accounts {
		for _, c := range a.Conflicts {
			fmt.Fprintf(tw, "  %s\tmapping %s\t%s\n", a.AccountName, c.MappingID, c.Reason)
		}
		for _, warn := range a.Warnings {
			fmt.Fprintf(tw, "  %s\t%s\n", a.AccountName, warn)
		}
		for _, f := range a.FailedChunks {
			fmt.Fprintf(tw, "  %s\t%d mappings rolled back\t%s\n", a.AccountName, len(f.MappingIDs), f.Error)
		}
	}
	return tw.Flush()
}
