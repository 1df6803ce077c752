package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/edvin/tenant-backup/internal/core"
	"github.com/edvin/tenant-backup/internal/export"
	"github.com/edvin/tenant-backup/internal/model"
)

// memJobs is an in-memory JobStore that enforces the same guarded
// transitions as the database service and records every status it saw.
type memJobs struct {
	mu      sync.Mutex
	jobs    map[string]*model.BackupJob
	history map[string][]string
	// failMarkReady makes MarkReady return this error.
	failMarkReady error
}

func newMemJobs() *memJobs {
	return &memJobs{
		jobs:    make(map[string]*model.BackupJob),
		history: make(map[string][]string),
	}
}

func (s *memJobs) Create(_ context.Context, job *model.BackupJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("duplicate job %s", job.ID)
	}
	cp := *job
	if cp.RecordCounts == nil {
		cp.RecordCounts = map[string]int{}
	}
	s.jobs[job.ID] = &cp
	s.history[job.ID] = []string{cp.Status}
	return nil
}

func (s *memJobs) GetByID(_ context.Context, id string) (*model.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *job
	cp.RecordCounts = make(map[string]int, len(job.RecordCounts))
	for k, v := range job.RecordCounts {
		cp.RecordCounts[k] = v
	}
	return &cp, nil
}

func (s *memJobs) ListByTenant(_ context.Context, tenantID string, limit int, cursor string) ([]model.BackupJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BackupJob
	for _, j := range s.jobs {
		if j.TenantID == tenantID && (cursor == "" || j.Token < cursor) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Token > out[k].Token })
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

func (s *memJobs) ListByStatus(_ context.Context, status string) ([]model.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BackupJob
	for _, j := range s.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s *memJobs) ListExpired(_ context.Context, now time.Time) ([]model.BackupJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BackupJob
	for _, j := range s.jobs {
		if j.Expired(now) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (s *memJobs) transition(id, to string, fn func(j *model.BackupJob)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !model.CanTransition(j.Status, to) {
		return core.ErrInvalidTransition
	}
	j.Status = to
	if fn != nil {
		fn(j)
	}
	s.history[id] = append(s.history[id], to)
	return nil
}

func (s *memJobs) MarkProcessing(_ context.Context, id string) error {
	return s.transition(id, model.BackupStatusProcessing, func(j *model.BackupJob) {
		now := time.Now()
		j.StartedAt = &now
	})
}

func (s *memJobs) UpdateProgress(_ context.Context, id string, progress int, module string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.BackupStatusProcessing {
		return core.ErrInvalidTransition
	}
	j.Progress = progress
	j.CurrentModule = &module
	return nil
}

func (s *memJobs) SetRecordCount(_ context.Context, id, module string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != model.BackupStatusProcessing {
		return core.ErrInvalidTransition
	}
	j.RecordCounts[module] = count
	return nil
}

func (s *memJobs) MarkReady(_ context.Context, id, filePath string, fileSize int64) error {
	if s.failMarkReady != nil {
		return s.failMarkReady
	}
	return s.transition(id, model.BackupStatusReady, func(j *model.BackupJob) {
		now := time.Now()
		j.Progress = 100
		j.CurrentModule = nil
		j.FilePath = &filePath
		j.FileSize = &fileSize
		j.CompletedAt = &now
	})
}

func (s *memJobs) MarkFailed(_ context.Context, id, message string) error {
	return s.transition(id, model.BackupStatusFailed, func(j *model.BackupJob) {
		now := time.Now()
		j.Error = &message
		j.CompletedAt = &now
	})
}

func (s *memJobs) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *memJobs) statuses(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history[id]...)
}

type memTenants map[string]*model.Tenant

func (m memTenants) GetByID(_ context.Context, id string) (*model.Tenant, error) {
	t, ok := m[id]
	if !ok {
		return nil, core.ErrTenantNotFound
	}
	return t, nil
}

type auditEntry struct {
	tenantID, actorID, action, jobID string
	details                          map[string]any
}

type memAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *memAudit) Record(tenantID, actorID, action, jobID string, details map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{tenantID, actorID, action, jobID, details})
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.action
	}
	return out
}

// tableSource serves rows per table filtered by company_id only.
type tableSource struct {
	tables map[string][]map[string]any
	// failTable makes Stream fail for that table.
	failTable string
	// block makes Stream wait for ctx to be canceled.
	block bool
}

func (s *tableSource) Stream(ctx context.Context, q export.Query, fn func(map[string]any) error) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if q.Module.Table == s.failTable {
		return fmt.Errorf("relation %q is unavailable", q.Module.Table)
	}
	for _, row := range s.tables[q.Module.Table] {
		if row["company_id"] != nil && row["company_id"] != q.TenantID {
			continue
		}
		b, err := json.Marshal(row)
		if err != nil {
			return err
		}
		var record map[string]any
		if err := json.Unmarshal(b, &record); err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

type nopResolver struct{}

func (nopResolver) Resolve(context.Context, string, string) (map[string]any, error) {
	return nil, nil
}

type fakeMirror struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
	err      error
}

func (m *fakeMirror) Upload(_ context.Context, tenantID, token, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.uploaded = append(m.uploaded, tenantID+"/"+token)
	return nil
}

func (m *fakeMirror) Delete(_ context.Context, tenantID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, tenantID+"/"+token)
	return nil
}
