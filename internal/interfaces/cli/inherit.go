package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/erp/channelsync/internal/application/inheritance"
)

func newInheritCommand(root *rootOptions) *cobra.Command {
	var (
		products   []string
		variants   []string
		attributes []string
		dryRun     bool
		force      bool
		batchSize  int
		format     string
	)
	cmd := &cobra.Command{
		Use:   "inherit",
		Short: "Copy inheritable product attributes down to variants",
		Long: "Inherits every inheritable attribute for all variants, or for the variants of --product\n" +
			"and the given --variant ids. Variant overrides are kept unless --force is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			productIDs, err := ParseIDs("product", products)
			if err != nil {
				return err
			}
			variantIDs, err := ParseIDs("variant", variants)
			if err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				if batchSize <= 0 {
					batchSize = app.Config.Inheritance.BatchSize
				}
				result, err := app.InheritJob.Run(ctx, inheritance.Scope{
					ProductIDs:    productIDs,
					VariantIDs:    variantIDs,
					AttributeKeys: attributes,
				}, inheritance.JobOptions{BatchSize: batchSize, DryRun: dryRun, Force: force})
				if err != nil {
					return err
				}
				if format == formatJSON {
					err = writeJSON(cmd.OutOrStdout(), result)
				} else {
					err = writeInheritResult(cmd.OutOrStdout(), result)
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
	cmd.Flags().StringSliceVar(&products, "product", nil, "product id (repeatable)")
	cmd.Flags().StringSliceVar(&variants, "variant", nil, "variant id (repeatable)")
	cmd.Flags().StringSliceVar(&attributes, "attribute", nil, "attribute key (repeatable); default every inheritable attribute")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report decisions without writing")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite variant overrides")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "variants per transaction (default inheritance.batch_size)")
	cmd.Flags().StringVar(&format, "format", formatConsole, "output format: console or json")
	return cmd
}

func writeInheritResult(w io.Writer, r *inheritance.JobResult) error {
	tw := newTable(w)
	fmt.Fprintf(tw, "Inheritance finished in %s (dry run=%t)\n", r.Duration.Round(time.Millisecond), r.DryRun)
	fmt.Fprintf(tw, "Variants: %d\tChunks: %d\tFailed chunks: %d\n", r.Variants, r.Chunks, len(r.FailedChunks))
	fmt.Fprintf(tw, "Inherited: %d\tSkipped: %d\tInvalid: %d\tErrors: %d\n", r.Inherited, r.Skipped, r.Invalid, r.Errors)
	if r.Cancelled {
		fmt.Fprintln(tw, "Cancelled before every chunk ran")
	}
	for _, d := range r.Details {
		for key, msg := range d.Errors {
			fmt.Fprintf(tw, "  %s\t%s\terror: %s\n", d.VariantID, key, msg)
		}
		for key, violations := range d.Invalid {
			for _, v := range violations {
				fmt.Fprintf(tw, "  %s\t%s\tinvalid: %s\n", d.VariantID, key, v)
			}
		}
	}
	for _, f := range r.FailedChunks {
		fmt.Fprintf(tw, "  chunk %d\t%d variants\t%s\n", f.Index, len(f.VariantIDs), f.Error)
	}
	return tw.Flush()
}
