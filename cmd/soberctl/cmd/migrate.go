package cmd

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/soberly/recovery/internal/db"
	"github.com/spf13/cobra"
)

type dbOptions struct {
	driver     string
	connection string
}

// addDBFlags binds --driver and --db, defaulting to DB_DRIVER and DB_CONNECTION.
func addDBFlags(cmd *cobra.Command, opts *dbOptions) {
	_ = godotenv.Load()

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = db.DriverSQLite
	}
	connection := os.Getenv("DB_CONNECTION")
	if connection == "" {
		connection = "./data/recovery.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}

	cmd.PersistentFlags().StringVar(&opts.driver, "driver", driver, "database driver (sqlite or postgres)")
	cmd.PersistentFlags().StringVar(&opts.connection, "db", connection, "database connection string")
}

func (o *dbOptions) open() (*sqlx.DB, error) {
	database, err := db.Init(o.driver, o.connection)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

func MigrateCmd() *cobra.Command {
	opts := &dbOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}
	addDBFlags(cmd, opts)

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.open()
			if err != nil {
				return err
			}
			defer database.Close()
			return db.RunMigrations(database.DB, opts.driver)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.open()
			if err != nil {
				return err
			}
			defer database.Close()
			return db.MigrateDown(database.DB, opts.driver)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := opts.open()
			if err != nil {
				return err
			}
			defer database.Close()

			err = db.MigrationStatus(database.DB, opts.driver)
			if err != nil {
				return err
			}
			version, err := db.Version(database.DB, opts.driver)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
			return nil
		},
	})

	return cmd
}
