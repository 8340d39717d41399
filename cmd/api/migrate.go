package main

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/condo-service/internal/persistence"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(*cobra.Command, []string) error {
				return runMigrate(persistence.MigrateUp)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all migrations",
			RunE: func(*cobra.Command, []string) error {
				return runMigrate(persistence.MigrateDown)
			},
		},
	)
	return cmd
}

func runMigrate(direction persistence.MigrationDirection) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	return persistence.RunMigrations(cfg.Postgres.DSN, direction, logger)
}
