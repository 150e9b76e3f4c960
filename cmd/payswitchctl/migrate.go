package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/payswitch-backend/pkg/db"
	"github.com/angelmondragon/payswitch-backend/pkg/migrate"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the goose schema migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", migrate.DefaultDir, "goose migrations directory")

	for _, command := range []string{"up", "down", "status"} {
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: "goose " + command,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrationDB(cmd, func(ctx context.Context, sqlDB *sql.DB, dir string) error {
					return migrate.Run(ctx, sqlDB, dir, command)
				})
			},
		})
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "version <YYYYMMDDHHMMSS>",
			Short: "Migrate up or down to an exact version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := migrate.ParseVersion(args[0]); err != nil {
					return err
				}
				return withMigrationDB(cmd, func(ctx context.Context, sqlDB *sql.DB, dir string) error {
					return migrate.MigrateToVersion(ctx, sqlDB, dir, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Write an empty timestamped SQL migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := migrate.CreateSQLMigration(dir, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created migration:", path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check migration files for goose annotations and ordering",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrate.ValidateDir(dir); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migration validation passed")
				return nil
			},
		},
	)
	return cmd
}

// withMigrationDB opens only the database; migrations must not depend on the rest of the stack.
func withMigrationDB(cmd *cobra.Command, fn func(ctx context.Context, sqlDB *sql.DB, dir string) error) (err error) {
	ctx := cmd.Context()
	cfg, logg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DB.IsSQLite() {
		return fmt.Errorf("goose migrations target postgres; the sqlite schema is applied on startup")
	}
	dir, _ := cmd.Flags().GetString("dir")

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, client.Close()) }()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": dir})
	logg.Info(ctx, "migrate ready")

	return fn(ctx, sqlDB, dir)
}
