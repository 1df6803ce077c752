package model

import (
	"encoding/json"
	"time"
)

// Audit actions recorded for the backup lifecycle.
const (
	AuditBackupCreated    = "BACKUP_CREATED"
	AuditBackupReady      = "BACKUP_READY"
	AuditBackupFailed     = "BACKUP_FAILED"
	AuditBackupDownloaded = "BACKUP_DOWNLOADED"
	AuditBackupDeleted    = "BACKUP_DELETED"
)

// AuditTargetBackupJob is the target type for backup lifecycle events.
const AuditTargetBackupJob = "backup_job"

// AuditLog is an append-only lifecycle event.
type AuditLog struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	TargetType *string         `json:"target_type,omitempty"`
	TargetID   *string         `json:"target_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
