package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/channelsync/internal/application/discovery"
)

func newDiscoverCommand(root *rootOptions) *cobra.Command {
	var (
		accounts []string
		force    bool
		format   string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Refresh the channel taxonomy of every active account",
		Long: "Runs schema discovery for every active account, or for the accounts given with --account.\n" +
			"Accounts discovered within the freshness window are skipped unless --force is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				ids, err := app.ResolveAccounts(ctx, accounts)
				if err != nil {
					return err
				}
				summary, err := app.Orchestrator.Run(ctx, discovery.Options{AccountIDs: ids, Force: force})
				if err != nil {
					return err
				}
				if format == formatJSON {
					err = writeJSON(cmd.OutOrStdout(), summary)
				} else {
					err = writeDiscoverySummary(cmd.OutOrStdout(), summary)
				}
				if err != nil {
					return err
				}
				if summary.HasFailures() {
					return ErrRunFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "account name or id (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "ignore the freshness window")
	cmd.Flags().StringVar(&format, "format", formatConsole, "output format: console or json")
	return cmd
}

func writeDiscoverySummary(w io.Writer, s *discovery.Summary) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Discovery finished in %s (forced=%t)\n", s.Duration.Round(time.Millisecond), s.Forced)
	fmt.Fprintf(tw, "Successful: %d\tFailed: %d\tSkipped: %d\n", s.Successful, s.Failed, s.Skipped)
	fmt.Fprintf(tw, "Categories: %d\tFields: %d (%d required)\tValue lists: %d\tValues: %d\n\n",
		s.Totals.Categories, s.Totals.Fields, s.Totals.RequiredFields, s.Totals.ValueLists, s.Totals.Values)

	fmt.Fprintln(tw, "ACCOUNT\tCHANNEL\tSTATUS\tFIELDS\tWRITTEN\tDETAIL")
	for _, r := range s.Accounts {
		detail := r.Reason
		if r.Error != "" {
			detail = r.Error
		}
		written := 0
		if r.Upsert != nil {
			written = r.Upsert.Written()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.AccountName, r.ChannelType.DisplayName(), r.Status, r.Counts.Fields, written, detail)
	}
	if len(s.Warnings) > 0 {
		fmt.Fprintln(tw, "\nWarnings:")
		for _, warn := range s.Warnings {
			fmt.Fprintf(tw, "  %s\n", warn)
		}
	}
	return tw.Flush()
}
