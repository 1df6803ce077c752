package db

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations applies every pending embedded migration: backup_jobs,
// audit_logs and the business tables the exporter reads.
func RunMigrations(databaseURL string) error {
	return withGoose(databaseURL, func(conn *sql.DB) error {
		if err := goose.Up(conn, "migrations"); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

// MigrationStatus prints the applied state of each embedded migration
// through goose's logger and returns the current schema version.
func MigrationStatus(databaseURL string) (int64, error) {
	var version int64
	err := withGoose(databaseURL, func(conn *sql.DB) error {
		if err := goose.Status(conn, "migrations"); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		v, err := goose.GetDBVersion(conn)
		if err != nil {
			return fmt.Errorf("schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func withGoose(databaseURL string, fn func(*sql.DB) error) error {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return fn(conn)
}
