package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/tenant-backup/internal/model"
)

const backupJobColumns = `id, tenant_id, created_by, token, status, progress, current_module, filters, record_counts,
	file_path, file_size, expires_at, error, started_at, completed_at, created_at, updated_at`

// BackupJobService persists backup jobs. Status changes are guarded by the
// expected current status so a job can only move forward.
type BackupJobService struct {
	db DB
}

func NewBackupJobService(db DB) *BackupJobService {
	return &BackupJobService{db: db}
}

func (s *BackupJobService) Create(ctx context.Context, job *model.BackupJob) error {
	filters, err := json.Marshal(job.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO backup_jobs (id, tenant_id, created_by, token, status, progress, filters, record_counts, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, '{}'::jsonb, $8, $9, $10)`,
		job.ID, job.TenantID, job.CreatedBy, job.Token, job.Status, job.Progress,
		filters, job.ExpiresAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup job: %w", err)
	}
	return nil
}

func (s *BackupJobService) GetByID(ctx context.Context, id string) (*model.BackupJob, error) {
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`SELECT `+backupJobColumns+` FROM backup_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get backup job %s: %w", id, err)
	}
	return job, nil
}

func (s *BackupJobService) GetByToken(ctx context.Context, token string) (*model.BackupJob, error) {
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`SELECT `+backupJobColumns+` FROM backup_jobs WHERE token = $1`, token))
	if err != nil {
		return nil, fmt.Errorf("get backup job by token %s: %w", token, err)
	}
	return job, nil
}

// ListByTenant returns jobs newest first. The cursor is the token of the last
// job on the previous page.
func (s *BackupJobService) ListByTenant(ctx context.Context, tenantID string, limit int, cursor string) ([]model.BackupJob, bool, error) {
	query := `SELECT ` + backupJobColumns + ` FROM backup_jobs WHERE tenant_id = $1`
	args := []any{tenantID}
	argIdx := 2

	if cursor != "" {
		query += fmt.Sprintf(` AND token < $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY token DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list backup jobs for tenant %s: %w", tenantID, err)
	}

	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	return jobs, hasMore, nil
}

// ListByStatus returns every job in the given stored status, oldest first.
func (s *BackupJobService) ListByStatus(ctx context.Context, status string) ([]model.BackupJob, error) {
	jobs, err := s.queryJobs(ctx,
		`SELECT `+backupJobColumns+` FROM backup_jobs WHERE status = $1 ORDER BY token`, status)
	if err != nil {
		return nil, fmt.Errorf("list %s backup jobs: %w", status, err)
	}
	return jobs, nil
}

// ListExpired returns terminal jobs whose advisory expiry is at or before now.
func (s *BackupJobService) ListExpired(ctx context.Context, now time.Time) ([]model.BackupJob, error) {
	jobs, err := s.queryJobs(ctx,
		`SELECT `+backupJobColumns+` FROM backup_jobs
		 WHERE status IN ($1, $2) AND expires_at <= $3 ORDER BY token`,
		model.BackupStatusReady, model.BackupStatusFailed, now)
	if err != nil {
		return nil, fmt.Errorf("list expired backup jobs: %w", err)
	}
	return jobs, nil
}

func (s *BackupJobService) MarkProcessing(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_jobs SET status = $1, progress = 0, started_at = now(), updated_at = now()
		 WHERE id = $2 AND status = $3`,
		model.BackupStatusProcessing, id, model.BackupStatusQueued,
	)
	if err != nil {
		return fmt.Errorf("set backup job %s status to processing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set backup job %s status to processing: %w", id, ErrInvalidTransition)
	}
	return nil
}

func (s *BackupJobService) UpdateProgress(ctx context.Context, id string, progress int, module string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_jobs SET progress = $1, current_module = $2, updated_at = now()
		 WHERE id = $3 AND status = $4`,
		progress, module, id, model.BackupStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update backup job %s progress: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update backup job %s progress: %w", id, ErrInvalidTransition)
	}
	return nil
}

// SetRecordCount merges one module's count into record_counts.
func (s *BackupJobService) SetRecordCount(ctx context.Context, id, module string, count int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_jobs SET record_counts = record_counts || jsonb_build_object($1::text, $2::int), updated_at = now()
		 WHERE id = $3 AND status = $4`,
		module, count, id, model.BackupStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("set backup job %s record count for %s: %w", id, module, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set backup job %s record count for %s: %w", id, module, ErrInvalidTransition)
	}
	return nil
}

// MarkReady records the finished archive and completes the job in one update.
func (s *BackupJobService) MarkReady(ctx context.Context, id, filePath string, fileSize int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_jobs SET status = $1, progress = 100, current_module = NULL, file_path = $2, file_size = $3,
		 completed_at = now(), updated_at = now()
		 WHERE id = $4 AND status = $5`,
		model.BackupStatusReady, filePath, fileSize, id, model.BackupStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("set backup job %s status to ready: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set backup job %s status to ready: %w", id, ErrInvalidTransition)
	}
	return nil
}

// MarkFailed fails a queued or processing job. The file columns are left
// untouched so a failed job never carries a path.
func (s *BackupJobService) MarkFailed(ctx context.Context, id, message string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_jobs SET status = $1, error = $2, current_module = NULL, completed_at = now(), updated_at = now()
		 WHERE id = $3 AND status IN ($4, $5)`,
		model.BackupStatusFailed, message, id, model.BackupStatusQueued, model.BackupStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("set backup job %s status to failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set backup job %s status to failed: %w", id, ErrInvalidTransition)
	}
	return nil
}

func (s *BackupJobService) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM backup_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete backup job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete backup job %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *BackupJobService) queryJobs(ctx context.Context, query string, args ...any) ([]model.BackupJob, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.BackupJob
	for rows.Next() {
		job, err := scanBackupJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup jobs: %w", err)
	}
	return jobs, nil
}

func scanBackupJob(row pgx.Row) (*model.BackupJob, error) {
	var j model.BackupJob
	var filters, counts []byte
	err := row.Scan(&j.ID, &j.TenantID, &j.CreatedBy, &j.Token, &j.Status, &j.Progress, &j.CurrentModule,
		&filters, &counts, &j.FilePath, &j.FileSize, &j.ExpiresAt, &j.Error,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &j.Filters); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
	}
	j.RecordCounts = map[string]int{}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &j.RecordCounts); err != nil {
			return nil, fmt.Errorf("decode record counts: %w", err)
		}
	}
	return &j, nil
}
