// Package cli is the operator command line of the sync core.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/channelsync/internal/infrastructure/config"
	"github.com/erp/channelsync/internal/infrastructure/logger"
)

// Exit codes
const (
	ExitOK = 0
	// ExitError is a configuration or startup error; nothing ran
	ExitError = 1
	// ExitFailures means the run finished but reported failures
	ExitFailures = 2
)

// ErrRunFailed is returned after a report was printed that contains failures
var ErrRunFailed = errors.New("run finished with failures")

// ExitCode maps the error returned by the root command to a process status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrRunFailed):
		return ExitFailures
	default:
		return ExitError
	}
}

type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "channelsync",
		Short:         "Marketplace synchronization core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.toml (default: ./config.toml or /etc/channelsync/config.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newDiscoverCommand(opts),
		newHealthCommand(opts),
		newInheritCommand(opts),
		newValidateCommand(opts),
		newMigrateLinksCommand(opts),
		newPublishCommand(opts),
		newAccountsCommand(opts),
		newDBCommand(opts),
		newSchedulerCommand(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// withApp loads the configuration, builds the App and runs fn
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := NewApp(logger.WithContext(cmd.Context(), log), cfg, log)
	if err != nil {
		return err
	}
	ctx := logger.WithContext(cmd.Context(), app.Logger)
	defer app.Close(context.WithoutCancel(ctx))
	return fn(ctx, app)
}
