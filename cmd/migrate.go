/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/ledgerlink/accounts/config"
	"github.com/ledgerlink/accounts/internal/db"
	"github.com/spf13/cobra"
)

var (
	migrationsPath string
	migrateDownAll bool
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run PostgreSQL schema migrations for the users table.

MongoDB needs no migrations; its unique email index is created at startup.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadRuntime()
		migrator, err := newMigrator(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = migrator.Close()
		}()

		if err := migrator.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("schema is up to date")
				return nil
			}
			return fmt.Errorf("migrate up failed: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration, or all of them with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadRuntime()
		migrator, err := newMigrator(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = migrator.Close()
		}()

		if migrateDownAll {
			err = migrator.Down()
		} else {
			err = migrator.Steps(-1)
		}
		if err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				logger.Info("nothing to roll back")
				return nil
			}
			return fmt.Errorf("migrate down failed: %w", err)
		}
		logger.Info("migrations rolled back")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", "internal/db/migrations", "directory holding the migration files")
	migrateDownCmd.Flags().BoolVar(&migrateDownAll, "all", false, "roll back every migration")
}

func newMigrator(cfg config.Config) (*migrate.Migrate, error) {
	if err := checkMigrationDriver(cfg.Database.Driver); err != nil {
		return nil, err
	}
	migrator, err := migrate.New("file://"+migrationsPath, db.PostgresURL(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return migrator, nil
}

// checkMigrationDriver accepts the drivers the server opens as Postgres,
// including an unset DB_DRIVER.
func checkMigrationDriver(driver string) error {
	switch driver {
	case config.DriverPostgres, "":
		return nil
	}
	return fmt.Errorf("migrations only apply to the %s driver, DB_DRIVER is %q", config.DriverPostgres, driver)
}
