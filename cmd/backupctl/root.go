package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/edvin/tenant-backup/internal/app"
	"github.com/edvin/tenant-backup/internal/config"
	"github.com/edvin/tenant-backup/internal/logging"
)

var flagJSON bool

var rootCmd = &cobra.Command{
	Use:           "backupctl",
	Short:         "Operate tenant data exports",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output JSON")
	rootCmd.AddCommand(migrateCmd, jobsCmd, exportCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate("backupctl"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// Stdout carries tables and JSON output, so logs go to stderr.
	return app.New(ctx, cfg, logging.New(os.Stderr, cfg, "backupctl"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
