package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenant-backup/internal/model"
	"github.com/edvin/tenant-backup/internal/platform"
)

// AuditLogger is an async, append-only audit log writer.
type AuditLogger struct {
	db     DB
	logger zerolog.Logger
	ch     chan model.AuditLog
	done   chan struct{}

	// mu guards closed; Record holds it while sending so Close cannot close
	// ch underneath a late handler.
	mu     sync.Mutex
	closed bool
}

func NewAuditLogger(db DB, logger zerolog.Logger) *AuditLogger {
	al := &AuditLogger{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
		ch:     make(chan model.AuditLog, 1024),
		done:   make(chan struct{}),
	}
	go al.drain()
	return al
}

// Record queues a lifecycle event for a backup job. It never blocks; when
// the buffer is full the entry is dropped with a warning.
func (al *AuditLogger) Record(tenantID, actorID, action, jobID string, details map[string]any) {
	entry := model.AuditLog{
		ID:        platform.NewID(),
		TenantID:  tenantID,
		ActorID:   actorID,
		Action:    action,
		CreatedAt: time.Now(),
	}
	if jobID != "" {
		targetType := model.AuditTargetBackupJob
		entry.TargetType = &targetType
		entry.TargetID = &jobID
	}
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			entry.Details = b
		}
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	if al.closed {
		al.logger.Warn().Str("action", action).Str("job_id", jobID).Msg("audit log closed, dropping entry")
		return
	}
	select {
	case al.ch <- entry:
	default:
		al.logger.Warn().Str("action", action).Str("job_id", jobID).Msg("audit log buffer full, dropping entry")
	}
}

func (al *AuditLogger) drain() {
	defer close(al.done)
	for entry := range al.ch {
		if err := al.insert(context.Background(), entry); err != nil {
			al.logger.Error().Err(err).Str("action", entry.Action).Msg("failed to write audit log")
		}
	}
}

func (al *AuditLogger) insert(ctx context.Context, entry model.AuditLog) error {
	_, err := al.db.Exec(ctx,
		`INSERT INTO audit_logs (id, tenant_id, actor_id, action, target_type, target_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TenantID, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID,
		entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Close stops accepting entries and waits for the buffer to drain. Entries
// recorded afterwards are dropped. Safe to call more than once.
func (al *AuditLogger) Close() {
	al.mu.Lock()
	if !al.closed {
		al.closed = true
		close(al.ch)
	}
	al.mu.Unlock()
	<-al.done
}

// ListByTarget returns the audit trail of one job, oldest first.
func (al *AuditLogger) ListByTarget(ctx context.Context, targetType, targetID string) ([]model.AuditLog, error) {
	rows, err := al.db.Query(ctx,
		`SELECT id, tenant_id, actor_id, action, target_type, target_id, details, created_at
		 FROM audit_logs WHERE target_type = $1 AND target_id = $2 ORDER BY created_at, id`,
		targetType, targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit logs for %s %s: %w", targetType, targetID, err)
	}
	defer rows.Close()

	var logs []model.AuditLog
	for rows.Next() {
		var l model.AuditLog
		var details []byte
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ActorID, &l.Action, &l.TargetType, &l.TargetID,
			&details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		l.Details = details
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return logs, nil
}
