package runner

import (
	"context"
	"os"
	"time"

	"github.com/edvin/tenant-backup/internal/export"
	"github.com/edvin/tenant-backup/internal/model"
)

// JobStore persists backup jobs. *core.BackupJobService satisfies it.
type JobStore interface {
	Create(ctx context.Context, job *model.BackupJob) error
	GetByID(ctx context.Context, id string) (*model.BackupJob, error)
	ListByTenant(ctx context.Context, tenantID string, limit int, cursor string) ([]model.BackupJob, bool, error)
	ListByStatus(ctx context.Context, status string) ([]model.BackupJob, error)
	ListExpired(ctx context.Context, now time.Time) ([]model.BackupJob, error)
	MarkProcessing(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, progress int, module string) error
	SetRecordCount(ctx context.Context, id, module string, count int) error
	MarkReady(ctx context.Context, id, filePath string, fileSize int64) error
	MarkFailed(ctx context.Context, id, message string) error
	Delete(ctx context.Context, id string) error
}

// TenantStore looks up tenants. *core.TenantService satisfies it.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
}

// Auditor records lifecycle events. *core.AuditLogger satisfies it.
type Auditor interface {
	Record(tenantID, actorID, action, jobID string, details map[string]any)
}

// ModuleExporter exports one module. *export.Exporter satisfies it.
type ModuleExporter interface {
	NewReferenceCache() *export.ReferenceCache
	Export(ctx context.Context, req export.Request, m export.Module) (*export.ModuleResult, error)
}

// ArchiveFiles manages archive files on local disk. *storage.Local satisfies it.
type ArchiveFiles interface {
	Path(tenantID, token string) (string, error)
	Create(tenantID, token string) (*os.File, error)
	Open(path string) (*os.File, os.FileInfo, error)
	Remove(path string) error
}

// Mirror copies finished archives off-host. *storage.S3Mirror satisfies it.
type Mirror interface {
	Upload(ctx context.Context, tenantID, token, localPath string) error
	Delete(ctx context.Context, tenantID, token string) error
}
