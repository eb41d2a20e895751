package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/liamcoop/stagegate/internal/config"
	"github.com/liamcoop/stagegate/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	var databaseURL, migrationsPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database", "", "Database URL (default: $DATABASE_URL)")
	cmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "Migrations directory (default: $MIGRATIONS_PATH or migrations)")

	open := func() (*migrate.Migrate, error) {
		cfg, err := config.LoadMigrate()
		if err != nil {
			return nil, err
		}
		if databaseURL != "" {
			cfg.DatabaseURL = databaseURL
		}
		if migrationsPath != "" {
			cfg.MigrationsPath = migrationsPath
		}
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL is required: use --database or DATABASE_URL")
		}

		logger.Info("connecting to database", "migrations", cfg.MigrationsPath)
		m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration instance: %w", err)
		}
		return m, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			err = m.Up()
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run (database is up to date)")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations completed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("failed to roll back migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rollback completed")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d (dirty: %v)\n", version, dirty)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version number: %w", err)
			}

			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("failed to force version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forced version to: %d\n", version)
			return nil
		},
	})

	return cmd
}
