// Package app wires the backup service's components from configuration.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/edvin/tenant-backup/internal/config"
	"github.com/edvin/tenant-backup/internal/core"
	"github.com/edvin/tenant-backup/internal/db"
	"github.com/edvin/tenant-backup/internal/export"
	"github.com/edvin/tenant-backup/internal/metrics"
	"github.com/edvin/tenant-backup/internal/runner"
	"github.com/edvin/tenant-backup/internal/storage"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Services *core.Services
	Registry *export.Registry
	Files    *storage.Local
	Runner   *runner.Runner
	Workers  *runner.Pool
	Manager  *runner.Manager

	mirror runner.Mirror
}

// New connects to the database and builds every component. Close releases
// what New acquired.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.BackupDir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.ServiceName, db.PoolSize(cfg.Workers))
	if err != nil {
		return nil, err
	}

	services := core.NewServices(pool, logger)
	registry := export.DefaultRegistry()
	files := storage.NewLocal(cfg.BackupDir)

	var mirror runner.Mirror
	if m := storage.NewS3Mirror(storage.S3Options{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	}, logger); m != nil {
		mirror = m
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("archive mirroring enabled")
	}

	exporter := export.NewExporter(
		export.NewPostgresSource(pool),
		export.NewPostgresResolver(pool),
		cfg.Location(),
		logger,
	)

	r := runner.NewRunner(runner.Deps{
		Jobs:     services.BackupJob,
		Tenants:  services.Tenant,
		Registry: registry,
		Exporter: exporter,
		Files:    files,
		Mirror:   mirror,
		Audit:    services.Audit,
		Logger:   logger,
	})
	workers := runner.NewPool(r, cfg.Workers, cfg.QueueSize, cfg.JobTimeout, logger)

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Services: services,
		Registry: registry,
		Files:    files,
		Runner:   r,
		Workers:  workers,
		mirror:   mirror,
	}
	a.Manager = a.NewManager(workers)
	return a, nil
}

// NewManager returns a Manager that hands new jobs to scheduler instead of
// the worker pool.
func (a *App) NewManager(scheduler runner.Scheduler) *runner.Manager {
	return runner.NewManager(runner.ManagerDeps{
		Jobs:      a.Services.BackupJob,
		Tenants:   a.Services.Tenant,
		Registry:  a.Registry,
		Scheduler: scheduler,
		Files:     a.Files,
		Mirror:    a.mirror,
		Audit:     a.Services.Audit,
		Retention: a.Config.Retention,
		Logger:    a.Logger,
	})
}

// RegisterMetrics adds the pool gauges to reg.
func (a *App) RegisterMetrics(reg prometheus.Registerer) {
	metrics.RegisterPgxPoolMetrics(reg, a.Pool)
}

// Close flushes the audit log and closes the database pool.
func (a *App) Close() {
	a.Services.Audit.Close()
	a.Pool.Close()
}
