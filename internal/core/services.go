package core

import "github.com/rs/zerolog"

type Services struct {
	BackupJob *BackupJobService
	Tenant    *TenantService
	Audit     *AuditLogger
}

// NewServices builds the database-backed services. Callers must Close the
// audit logger on shutdown to flush pending entries.
func NewServices(db DB, logger zerolog.Logger) *Services {
	return &Services{
		BackupJob: NewBackupJobService(db),
		Tenant:    NewTenantService(db),
		Audit:     NewAuditLogger(db, logger),
	}
}
