package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/channelsync/internal/domain/taxonomy"
)

func newHealthCommand(root *rootOptions) *cobra.Command {
	var (
		account string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Score the taxonomy cache of one account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				ids, err := app.ResolveAccounts(ctx, []string{account})
				if err != nil {
					return err
				}
				report, err := app.Store.HealthReport(ctx, ids[0])
				if err != nil {
					return err
				}
				if format == formatJSON {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				return writeHealthReport(cmd.OutOrStdout(), account, report)
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account name or id")
	cmd.Flags().StringVar(&format, "format", formatConsole, "output format: console or json")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func writeHealthReport(w io.Writer, account string, r *taxonomy.HealthReport) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Taxonomy health of %s: %d/100\n", account, r.Score)
	if r.LastSyncedAt != nil {
		fmt.Fprintf(tw, "Last synced: %s\n", r.LastSyncedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintln(tw, "Last synced: never")
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(tw, "  - %s\n", issue.Message)
	}
	return tw.Flush()
}
