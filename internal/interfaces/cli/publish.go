package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPublishCommand(root *rootOptions) *cobra.Command {
	var (
		account string
		product string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Push a catalog product to one account and record the returned ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			productIDs, err := ParseIDs("product", []string{product})
			if err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				ids, err := app.ResolveAccounts(ctx, []string{account})
				if err != nil {
					return err
				}
				result, err := app.Publisher.PublishProduct(ctx, ids[0], productIDs[0])
				if err != nil {
					return err
				}
				if format == formatJSON {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					if result.Success {
						fmt.Fprintf(out, "Published as %s (%d variants linked, %d pending)\n",
							result.ProductLink.ExternalProductID, len(result.VariantLinks), result.Pending)
					} else {
						fmt.Fprintf(out, "Rejected: %s\n", result.Error)
					}
				}
				if !result.Success {
					return ErrRunFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account name or id")
	cmd.Flags().StringVar(&product, "product", "", "product id")
	cmd.Flags().StringVar(&format, "format", formatConsole, "output format: console or json")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}
