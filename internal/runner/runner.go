package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenant-backup/internal/archive"
	"github.com/edvin/tenant-backup/internal/core"
	"github.com/edvin/tenant-backup/internal/export"
	"github.com/edvin/tenant-backup/internal/metrics"
	"github.com/edvin/tenant-backup/internal/model"
)

// finalizeTimeout bounds the status update written after a job's own
// context has been canceled.
const finalizeTimeout = 10 * time.Second

// Runner drives one job from queued to ready or failed. Modules are exported
// one at a time into a single archive.
type Runner struct {
	jobs     JobStore
	tenants  TenantStore
	registry *export.Registry
	exporter ModuleExporter
	files    ArchiveFiles
	mirror   Mirror
	audit    Auditor
	workDir  string
	logger   zerolog.Logger
}

// Deps wires a Runner. Mirror and WorkDir are optional.
type Deps struct {
	Jobs     JobStore
	Tenants  TenantStore
	Registry *export.Registry
	Exporter ModuleExporter
	Files    ArchiveFiles
	Mirror   Mirror
	Audit    Auditor
	WorkDir  string
	Logger   zerolog.Logger
}

func NewRunner(d Deps) *Runner {
	return &Runner{
		jobs:     d.Jobs,
		tenants:  d.Tenants,
		registry: d.Registry,
		exporter: d.Exporter,
		files:    d.Files,
		mirror:   d.Mirror,
		audit:    d.Audit,
		workDir:  d.WorkDir,
		logger:   d.Logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes a queued job. The returned error is also recorded on the job
// unless the job could not be loaded or had already left the queue.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	logger := r.logger.With().Str("job_id", job.ID).Str("token", job.Token).Str("tenant_id", job.TenantID).Logger()

	if job.Status != model.BackupStatusQueued {
		logger.Warn().Str("status", job.Status).Msg("job is not queued, skipping")
		return fmt.Errorf("run job %s in status %s: %w", job.ID, job.Status, core.ErrInvalidTransition)
	}

	tenant, err := r.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		r.fail(ctx, logger, job, err)
		return err
	}

	if err := r.jobs.MarkProcessing(ctx, job.ID); err != nil {
		return err
	}
	started := time.Now()
	metrics.RunningJobs.Inc()
	defer metrics.RunningJobs.Dec()
	logger.Info().Strs("modules", job.Filters.Modules).Msg("backup started")

	path, size, err := r.build(ctx, logger, job, tenant)
	if err == nil && r.mirror != nil {
		if err = r.mirror.Upload(ctx, job.TenantID, job.Token, path); err != nil {
			err = fmt.Errorf("mirror archive: %w", err)
			r.removeFile(logger, path)
		}
	}
	if err != nil {
		r.fail(ctx, logger, job, err)
		metrics.JobDuration.WithLabelValues(model.BackupStatusFailed).Observe(time.Since(started).Seconds())
		return err
	}

	if err := r.jobs.MarkReady(ctx, job.ID, path, size); err != nil {
		r.removeFile(logger, path)
		r.fail(ctx, logger, job, err)
		return err
	}

	metrics.JobsTotal.WithLabelValues(model.BackupStatusReady).Inc()
	metrics.JobDuration.WithLabelValues(model.BackupStatusReady).Observe(time.Since(started).Seconds())
	r.audit.Record(job.TenantID, job.CreatedBy, model.AuditBackupReady, job.ID, map[string]any{
		"token":     job.Token,
		"file_size": size,
	})
	logger.Info().Int64("file_size", size).Dur("elapsed", time.Since(started)).Msg("backup ready")
	return nil
}

// build writes the archive and returns its path and size. On error the
// partial file is removed.
func (r *Runner) build(ctx context.Context, logger zerolog.Logger, job *model.BackupJob, tenant *model.Tenant) (path string, size int64, err error) {
	modules, err := r.registry.Select(job.Filters.Modules)
	if err != nil {
		return "", 0, err
	}
	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name
	}

	workDir, err := os.MkdirTemp(r.workDir, "backup-"+job.Token+"-")
	if err != nil {
		return "", 0, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	f, err := r.files.Create(job.TenantID, job.Token)
	if err != nil {
		return "", 0, err
	}
	archivePath := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			r.removeFile(logger, archivePath)
		}
	}()

	aw, err := archive.NewWriter(f, archive.Manifest{
		JobToken:     job.Token,
		TenantID:     tenant.ID,
		TenantName:   tenant.Name,
		CreatedAt:    job.CreatedAt,
		CreatedBy:    job.CreatedBy,
		ExpiresAt:    job.ExpiresAt,
		Modules:      names,
		IncludeFiles: job.Filters.IncludeFiles,
		IncludePII:   job.Filters.IncludePII,
	})
	if err != nil {
		return "", 0, fmt.Errorf("write archive: %w", err)
	}

	refs := r.exporter.NewReferenceCache()
	for i, m := range modules {
		if err = r.jobs.UpdateProgress(ctx, job.ID, i*100/len(modules), m.Name); err != nil {
			return "", 0, err
		}

		var res *export.ModuleResult
		res, err = r.exporter.Export(ctx, export.Request{
			TenantID: job.TenantID,
			Filters:  job.Filters,
			WorkDir:  workDir,
			Refs:     refs,
		}, m)
		if err != nil {
			return "", 0, fmt.Errorf("export module %s: %w", m.Name, err)
		}

		err = aw.AddModule(res)
		res.Cleanup()
		if err != nil {
			return "", 0, fmt.Errorf("write archive: %w", err)
		}

		if err = r.jobs.SetRecordCount(ctx, job.ID, m.Name, res.Count); err != nil {
			return "", 0, err
		}
		metrics.RecordsExported.WithLabelValues(m.Name).Add(float64(res.Count))
		logger.Debug().Str("module", m.Name).Int("records", res.Count).Msg("module written")
	}

	if err = aw.Close(); err != nil {
		return "", 0, fmt.Errorf("write archive: %w", err)
	}
	if err = f.Sync(); err != nil {
		return "", 0, fmt.Errorf("sync archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat archive: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", 0, fmt.Errorf("close archive: %w", err)
	}
	return archivePath, info.Size(), nil
}

// fail records a terminal failure. It uses a fresh deadline because the job
// context is often the reason for the failure.
func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, job *model.BackupJob, cause error) {
	msg := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "timed out: " + msg
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := r.jobs.MarkFailed(fctx, job.ID, msg); err != nil {
		logger.Error().Err(err).Str("cause", msg).Msg("failed to record job failure")
		return
	}
	metrics.JobsTotal.WithLabelValues(model.BackupStatusFailed).Inc()
	r.audit.Record(job.TenantID, job.CreatedBy, model.AuditBackupFailed, job.ID, map[string]any{
		"token": job.Token,
		"error": msg,
	})
	logger.Error().Err(cause).Msg("backup failed")
}

func (r *Runner) removeFile(logger zerolog.Logger, path string) {
	if err := r.files.Remove(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial archive")
	}
}
