package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edvin/tenant-backup/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "migrations applied")
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		version, err := db.MigrationStatus(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(map[string]int64{"version": version})
		}
		fmt.Printf("schema version %d\n", version)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
}
