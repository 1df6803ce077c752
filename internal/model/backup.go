package model

import "time"

// DefaultRetention is how long a finished archive is advertised as valid.
const DefaultRetention = 7 * 24 * time.Hour

type BackupJob struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	CreatedBy     string         `json:"created_by"`
	Token         string         `json:"token"`
	Status        string         `json:"status"`
	Progress      int            `json:"progress"`
	CurrentModule *string        `json:"current_module,omitempty"`
	Filters       BackupFilters  `json:"filters"`
	RecordCounts  map[string]int `json:"record_counts"`
	FilePath      *string        `json:"-"`
	FileSize      *int64         `json:"file_size,omitempty"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Error         *string        `json:"error,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Expired reports whether the advisory retention window has elapsed. Nothing
// acts on this automatically.
func (j *BackupJob) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && !now.Before(j.ExpiresAt)
}

// DisplayStatus returns the stored status, or BackupStatusExpired for a ready
// job past its retention window.
func (j *BackupJob) DisplayStatus(now time.Time) string {
	if j.Status == BackupStatusReady && j.Expired(now) {
		return BackupStatusExpired
	}
	return j.Status
}

// DateRange bounds a module's date field. Both ends are inclusive.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// BackupFilters narrows what a job exports. EmployeeID, Department, Branch,
// Status and SearchTerm are stored with the job but not applied by the exporter.
type BackupFilters struct {
	DateRange    *DateRange `json:"date_range,omitempty"`
	Modules      []string   `json:"modules,omitempty"`
	EmployeeID   string     `json:"employee_id,omitempty"`
	Department   string     `json:"department,omitempty"`
	Branch       string     `json:"branch,omitempty"`
	Status       string     `json:"status,omitempty"`
	SearchTerm   string     `json:"search_term,omitempty"`
	IncludeFiles bool       `json:"include_files"`
	IncludePII   bool       `json:"include_pii"`
}
