package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/infrastructure/logger"
)

// AccountsFile is the YAML layout accepted by `accounts import`
type AccountsFile struct {
	Accounts []AccountSpec `yaml:"accounts" validate:"required,min=1,dive"`
}

// AccountSpec describes one account to create or update
type AccountSpec struct {
	Name     string         `yaml:"name" validate:"required"`
	Type     string         `yaml:"type" validate:"required"`
	Active   *bool          `yaml:"active"`
	Settings map[string]any `yaml:"settings"`
}

// ImportResult counts the accounts written by an import
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ParseAccountsFile decodes and validates an accounts file
func ParseAccountsFile(r io.Reader) (*AccountsFile, error) {
	var doc AccountsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&doc); err != nil {
		return nil, fmt.Errorf("invalid accounts file: %w", err)
	}
	seen := make(map[string]bool, len(doc.Accounts))
	for _, ae := range doc.Accounts {
		if _, err := channel.ParseType(ae.Type); err != nil {
			return nil, fmt.Errorf("account %s: %w", ae.Name, err)
		}
		if seen[ae.Name] {
			return nil, fmt.Errorf("account %s: listed twice", ae.Name)
		}
		seen[ae.Name] = true
	}
	return &doc, nil
}

// ImportAccounts creates the accounts of doc or updates the ones that
// exist by name. The channel type of an existing account cannot change.
func ImportAccounts(ctx context.Context, repo channel.AccountRepository, doc *AccountsFile) (*ImportResult, error) {
	result := &ImportResult{}
	for _, ae := range doc.Accounts {
		channelType, err := channel.ParseType(ae.Type)
		if err != nil {
			return nil, err
		}

		acc, err := repo.FindByName(ctx, ae.Name)
		switch {
		case errors.Is(err, channel.ErrAccountNotFound):
			if acc, err = channel.NewAccount(channelType, ae.Name, ae.Settings); err != nil {
				return nil, fmt.Errorf("account %s: %w", ae.Name, err)
			}
			result.Created++
		case err != nil:
			return nil, err
		default:
			if acc.Type != channelType {
				return nil, fmt.Errorf("account %s: %w", ae.Name, channel.ErrAccountNameConflict)
			}
			if ae.Settings != nil {
				acc.Settings = ae.Settings
			}
			acc.Touch()
			result.Updated++
		}

		if ae.Active != nil {
			if *ae.Active {
				acc.Activate()
			} else {
				acc.Deactivate()
			}
		}
		if err := repo.Save(ctx, acc); err != nil {
			return nil, fmt.Errorf("account %s: %w", ae.Name, err)
		}
	}
	return result, nil
}

func newAccountsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage channel accounts",
	}
	cmd.AddCommand(newAccountsImportCommand(root), newAccountsListCommand(root))
	return cmd
}

func newAccountsImportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create or update accounts from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			doc, err := ParseAccountsFile(f)
			if err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				var result *ImportResult
				err := app.TxManager.WithinTx(ctx, func(ctx context.Context) error {
					var err error
					result, err = ImportAccounts(ctx, app.Accounts, doc)
					return err
				})
				if err != nil {
					return err
				}
				logger.FromContext(ctx).Info("Accounts imported",
					zap.Int("created", result.Created),
					zap.Int("updated", result.Updated),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "Accounts created: %d, updated: %d\n", result.Created, result.Updated)
				return nil
			})
		},
	}
}

func newAccountsListCommand(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List channel accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return root.withApp(cmd, func(ctx context.Context, app *App) error {
				accounts, err := app.Accounts.FindAll(ctx)
				if err != nil {
					return err
				}
				if format == formatJSON {
					return writeJSON(cmd.OutOrStdout(), accounts)
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "NAME\tCHANNEL\tACTIVE\tLAST DISCOVERED\tID")
				for _, a := range accounts {
					discovered := "never"
					if a.LastDiscoveredAt != nil {
						discovered = a.LastDiscoveredAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", a.Name, a.Type.DisplayName(), a.IsActive, discovered, a.ID)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", formatConsole, "output format: console or json")
	return cmd
}
