package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/channelsync/internal/infrastructure/config"
	"github.com/erp/channelsync/internal/infrastructure/migration"
	"github.com/erp/channelsync/internal/infrastructure/persistence"
)

var errSQLiteMigrations = errors.New("sqlite schemas are created from the models; only `db migrate up` applies")

func newDBCommand(root *rootOptions) *cobra.Command {
	db := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or scaffold schema migrations",
	}
	migrate.AddCommand(
		newMigrateRunCommand(root, "up", "Apply every pending migration", func(m *migration.Migrator, _ []string) error { return m.Up() }),
		newMigrateRunCommand(root, "down", "Roll back every applied migration", func(m *migration.Migrator, _ []string) error { return m.Down() }),
		newMigrateStepsCommand(root),
		newMigrateForceCommand(root),
		newMigrateVersionCommand(root),
		newMigrateCreateCommand(root),
		newMigrateListCommand(),
	)
	db.AddCommand(migrate)
	return db
}

// withMigrator runs fn against the configured postgres database. For sqlite
// only `up` is meaningful and creates the tables from the models.
func withMigrator(root *rootOptions, name string, fn func(*migration.Migrator) error) error {
	cfg, log, err := root.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.Driver == "sqlite" {
		if name != "up" {
			return errSQLiteMigrations
		}
		return autoMigrateSQLite(cfg, log)
	}

	m, err := migration.NewFromDSN(cfg.Database.DSN(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return fn(m)
}

func autoMigrateSQLite(cfg *config.Config, log *zap.Logger) error {
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	log.Info("SQLite schema up to date", zap.String("path", cfg.Database.Path))
	return nil
}

func newMigrateRunCommand(root *rootOptions, name, short string, fn func(*migration.Migrator, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(root, name, func(m *migration.Migrator) error { return fn(m, args) })
		},
	}
}

func newMigrateStepsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "steps <n>",
		Short: "Apply n migrations (negative rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n == 0 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return withMigrator(root, "steps", func(m *migration.Migrator) error { return m.Steps(n) })
		},
	}
}

func newMigrateForceCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the recorded version after repairing a dirty migration by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return withMigrator(root, "force", func(m *migration.Migrator) error { return m.Force(v) })
		},
	}
}

func newMigrateVersionCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(root, "version", func(m *migration.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
				return nil
			})
		},
	}
}

func newMigrateCreateCommand(root *rootOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create <name> [description...]",
		Short: "Scaffold the next numbered up/down migration pair",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, _, err := root.load()
				if err != nil {
					return err
				}
				dir = cfg.Migration.Path
			}
			mf, err := migration.CreateMigration(dir, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created version %d:\n  %s\n  %s\n", mf.Version, mf.UpPath, mf.DownPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default migration.path)")
	return cmd
}

func newMigrateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the migrations embedded in the binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := migration.ListMigrations(migration.SchemaFS())
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%06d  %s\n", e.Version, e.Name)
			}
			return nil
		},
	}
}
