package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edvin/tenant-backup/internal/api"
	"github.com/edvin/tenant-backup/internal/app"
	"github.com/edvin/tenant-backup/internal/config"
	"github.com/edvin/tenant-backup/internal/db"
	"github.com/edvin/tenant-backup/internal/logging"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("backup-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg, "backup-api")

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.Close()
	a.RegisterMetrics(prometheus.DefaultRegisterer)

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := a.Workers.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("worker pool stopped")
		}
	}()

	if err := a.Manager.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("job recovery failed")
	}

	srv := api.NewServer(logger, api.Options{
		DB:       a.Pool,
		Queue:    a.Workers,
		Jobs:     a.Manager,
		Audit:    a.Services.Audit,
		Location: cfg.Location(),
	})

	// Archive downloads lift the write timeout per request.
	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting backup API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	// Running jobs are canceled and recorded as failed.
	cancel()
	<-workersDone
}
