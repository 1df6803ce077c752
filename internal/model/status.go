package model

// Backup job status constants.
const (
	BackupStatusQueued     = "queued"
	BackupStatusProcessing = "processing"
	BackupStatusReady      = "ready"
	BackupStatusFailed     = "failed"
	// BackupStatusExpired is derived from expires_at and never stored.
	BackupStatusExpired = "expired"
)

var backupTransitions = map[string][]string{
	BackupStatusQueued:     {BackupStatusProcessing, BackupStatusFailed},
	BackupStatusProcessing: {BackupStatusReady, BackupStatusFailed},
}

// CanTransition reports whether a job may move from one stored status to
// another. Ready and failed are terminal.
func CanTransition(from, to string) bool {
	for _, next := range backupTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from status.
func IsTerminal(status string) bool {
	return status == BackupStatusReady || status == BackupStatusFailed
}
