package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"twscraper/internal/database"
	"twscraper/pkg/logger"
	"twscraper/pkg/ui"
)

var (
	migrateDown   int
	migrateStatus bool
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back the database schema",
	Long: `Apply every pending schema migration to the configured database.

The database DSN must be a postgres:// URL. Set database.migrate_on_start to
migrate automatically whenever a command connects.`,
	Example: `  # Bring the schema up to date
  twscraper migrate --database-dsn postgres://twscraper@localhost/twscraper

  # Undo the latest migration
  twscraper migrate --down 1

  # Print the current schema version
  twscraper migrate --status`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().IntVar(&migrateDown, "down", 0, "roll back this many migrations")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print the schema version and exit")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	dsn := cfg.Database.DSN
	if dsn == "" {
		return errors.New("no database configured; set database.dsn or --database-dsn")
	}

	switch {
	case migrateStatus:
		m, err := database.NewMigrator(dsn)
		if err != nil {
			return err
		}
		defer m.Close()
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			ui.PrintInfo("Schema version", "none")
			return nil
		}
		if err != nil {
			return err
		}
		ui.PrintInfo("Schema version", strconv.FormatUint(uint64(version), 10))
		if dirty {
			ui.PrintWarning("Schema is dirty", "a migration failed part way")
		}
		return nil

	case migrateDown > 0:
		if err := database.RollbackMigrations(dsn, migrateDown); err != nil {
			return err
		}
		ui.PrintSuccess(fmt.Sprintf("Rolled back %d migration(s)", migrateDown))
		return nil

	default:
		if err := database.RunMigrations(dsn, logger.GetLogger()); err != nil {
			return err
		}
		ui.PrintSuccess("Schema is up to date")
		return nil
	}
}
