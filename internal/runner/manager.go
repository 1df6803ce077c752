package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenant-backup/internal/core"
	"github.com/edvin/tenant-backup/internal/export"
	"github.com/edvin/tenant-backup/internal/model"
	"github.com/edvin/tenant-backup/internal/platform"
)

// SystemActor is recorded for actions not triggered by a user.
const SystemActor = "system"

// InterruptedMessage is the error recorded on jobs found processing at startup.
const InterruptedMessage = "interrupted by restart"

// Scheduler queues and cancels jobs. *Pool satisfies it.
type Scheduler interface {
	Enqueue(jobID string) error
	Cancel(jobID string) bool
}

// Manager is the entry point for creating, reading, downloading and deleting
// backup jobs.
type Manager struct {
	jobs      JobStore
	tenants   TenantStore
	registry  *export.Registry
	scheduler Scheduler
	files     ArchiveFiles
	mirror    Mirror
	audit     Auditor
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// ManagerDeps wires a Manager. Mirror is optional.
type ManagerDeps struct {
	Jobs      JobStore
	Tenants   TenantStore
	Registry  *export.Registry
	Scheduler Scheduler
	Files     ArchiveFiles
	Mirror    Mirror
	Audit     Auditor
	Retention time.Duration
	Logger    zerolog.Logger
}

func NewManager(d ManagerDeps) *Manager {
	retention := d.Retention
	if retention <= 0 {
		retention = model.DefaultRetention
	}
	return &Manager{
		jobs:      d.Jobs,
		tenants:   d.Tenants,
		registry:  d.Registry,
		scheduler: d.Scheduler,
		files:     d.Files,
		mirror:    d.Mirror,
		audit:     d.Audit,
		retention: retention,
		logger:    d.Logger.With().Str("component", "manager").Logger(),
		now:       time.Now,
	}
}

// Create persists a queued job and hands it to the scheduler. If the queue
// is full the job is removed again and ErrQueueFull is returned.
func (m *Manager) Create(ctx context.Context, tenantID, actorID string, filters model.BackupFilters) (*model.BackupJob, error) {
	if _, err := m.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}
	if _, err := m.registry.Select(filters.Modules); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	job := &model.BackupJob{
		ID:           platform.NewID(),
		TenantID:     tenantID,
		CreatedBy:    actorID,
		Token:        platform.NewToken(),
		Status:       model.BackupStatusQueued,
		Filters:      filters,
		RecordCounts: map[string]int{},
		ExpiresAt:    now.Add(m.retention),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := m.scheduler.Enqueue(job.ID); err != nil {
		if delErr := m.jobs.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			m.logger.Error().Err(delErr).Str("job_id", job.ID).Msg("failed to remove unscheduled job")
		}
		return nil, err
	}

	m.audit.Record(tenantID, actorID, model.AuditBackupCreated, job.ID, map[string]any{
		"token":   job.Token,
		"modules": filters.Modules,
	})
	m.logger.Info().Str("job_id", job.ID).Str("token", job.Token).Str("tenant_id", tenantID).Msg("backup queued")
	return job, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*model.BackupJob, error) {
	return m.jobs.GetByID(ctx, id)
}

func (m *Manager) List(ctx context.Context, tenantID string, limit int, cursor string) ([]model.BackupJob, bool, error) {
	return m.jobs.ListByTenant(ctx, tenantID, limit, cursor)
}

// Download is an open archive ready to be streamed. The caller closes File.
type Download struct {
	File     *os.File
	Size     int64
	Filename string
	ModTime  time.Time
}

// Download opens a ready job's archive. A job that is not ready, or whose
// file is gone, reports core.ErrNotFound.
func (m *Manager) Download(ctx context.Context, id, actorID string) (*Download, error) {
	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.BackupStatusReady || job.FilePath == nil {
		return nil, fmt.Errorf("download %s: %w: %w", id, core.ErrNotFound, core.ErrNotReady)
	}

	f, info, err := m.files.Open(*job.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("download %s: archive missing: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	tenantName := job.TenantID
	if tenant, err := m.tenants.GetByID(ctx, job.TenantID); err == nil {
		tenantName = tenant.Name
	}

	m.audit.Record(job.TenantID, actorID, model.AuditBackupDownloaded, job.ID, map[string]any{"token": job.Token})
	return &Download{
		File:     f,
		Size:     info.Size(),
		Filename: DownloadFilename(tenantName, job.CreatedAt, job.Token),
		ModTime:  info.ModTime(),
	}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DownloadFilename builds <tenant-name>_<YYYY-MM-DD>_<token>.zip with the
// tenant name reduced to filename-safe characters.
func DownloadFilename(tenantName string, created time.Time, token string) string {
	name := strings.Trim(unsafeFilenameChars.ReplaceAllString(tenantName, "-"), "-.")
	if name == "" {
		name = "tenant"
	}
	return fmt.Sprintf("%s_%s_%s.zip", name, created.UTC().Format(time.DateOnly), token)
}

// Delete cancels the job if it is running, then removes its row, archive
// and mirrored copy.
func (m *Manager) Delete(ctx context.Context, id, actorID string) error {
	job, err := m.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if m.scheduler != nil && m.scheduler.Cancel(job.ID) {
		m.logger.Info().Str("job_id", job.ID).Msg("canceled running job for deletion")
	}

	if err := m.jobs.Delete(ctx, job.ID); err != nil {
		return err
	}

	path := ""
	if job.FilePath != nil {
		path = *job.FilePath
	} else if p, err := m.files.Path(job.TenantID, job.Token); err == nil {
		path = p
	}
	if err := m.files.Remove(path); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove archive")
	}
	// The runner may upload after the status was read; deleting a missing
	// key succeeds.
	if m.mirror != nil {
		if err := m.mirror.Delete(ctx, job.TenantID, job.Token); err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove mirrored archive")
		}
	}

	m.audit.Record(job.TenantID, actorID, model.AuditBackupDeleted, job.ID, map[string]any{"token": job.Token})
	return nil
}

// Prune deletes jobs whose advisory expiry has passed. Nothing calls it
// automatically; with dryRun set it only reports what would be removed.
func (m *Manager) Prune(ctx context.Context, dryRun bool) ([]model.BackupJob, error) {
	expired, err := m.jobs.ListExpired(ctx, m.now())
	if err != nil {
		return nil, err
	}
	if dryRun {
		return expired, nil
	}

	pruned := make([]model.BackupJob, 0, len(expired))
	for _, job := range expired {
		if err := m.Delete(ctx, job.ID, SystemActor); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			return pruned, fmt.Errorf("prune %s: %w", job.ID, err)
		}
		pruned = append(pruned, job)
	}
	return pruned, nil
}

// Recover runs at startup. Jobs left processing are failed and queued jobs
// are handed back to the scheduler. Jobs that do not fit in the queue stay
// queued for the next start.
func (m *Manager) Recover(ctx context.Context) error {
	stuck, err := m.jobs.ListByStatus(ctx, model.BackupStatusProcessing)
	if err != nil {
		return err
	}
	for _, job := range stuck {
		if err := m.jobs.MarkFailed(ctx, job.ID, InterruptedMessage); err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to fail interrupted job")
			continue
		}
		if p, err := m.files.Path(job.TenantID, job.Token); err == nil {
			m.files.Remove(p)
		}
		m.audit.Record(job.TenantID, SystemActor, model.AuditBackupFailed, job.ID, map[string]any{
			"token": job.Token,
			"error": InterruptedMessage,
		})
	}

	queued, err := m.jobs.ListByStatus(ctx, model.BackupStatusQueued)
	if err != nil {
		return err
	}
	requeued := 0
	for _, job := range queued {
		if err := m.scheduler.Enqueue(job.ID); err != nil {
			m.logger.Warn().Err(err).Int("remaining", len(queued)-requeued).Msg("queue full during recovery")
			break
		}
		requeued++
	}

	m.logger.Info().Int("interrupted", len(stuck)).Int("requeued", requeued).Msg("recovery complete")
	return nil
}
