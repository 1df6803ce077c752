package request

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edvin/tenant-backup/internal/model"
)

// CreateBackupJob is the body of POST /tenants/{tenantID}/backups.
//
// start_date and end_date accept RFC 3339 timestamps or plain dates. A plain
// end date covers the whole day. include_files defaults to true.
type CreateBackupJob struct {
	Modules      []string `json:"modules" validate:"omitempty,max=32,dive,module"`
	StartDate    string   `json:"start_date" validate:"omitempty,max=64"`
	EndDate      string   `json:"end_date" validate:"omitempty,max=64"`
	EmployeeID   string   `json:"employee_id" validate:"omitempty,max=64"`
	Department   string   `json:"department" validate:"omitempty,max=128"`
	Branch       string   `json:"branch" validate:"omitempty,max=128"`
	Status       string   `json:"status" validate:"omitempty,max=64"`
	SearchTerm   string   `json:"search_term" validate:"omitempty,max=256"`
	IncludeFiles *bool    `json:"include_files"`
	IncludePII   bool     `json:"include_pii"`
}

var ErrInvalidDateRange = errors.New("start_date must not be after end_date")

// Filters converts the request into job filters. Plain dates are read in loc.
func (c CreateBackupJob) Filters(loc *time.Location) (model.BackupFilters, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := model.BackupFilters{
		Modules:      dedupe(c.Modules),
		EmployeeID:   c.EmployeeID,
		Department:   c.Department,
		Branch:       c.Branch,
		Status:       c.Status,
		SearchTerm:   c.SearchTerm,
		IncludeFiles: c.IncludeFiles == nil || *c.IncludeFiles,
		IncludePII:   c.IncludePII,
	}

	start, err := parseBound(c.StartDate, loc, false)
	if err != nil {
		return f, fmt.Errorf("invalid start_date: %w", err)
	}
	end, err := parseBound(c.EndDate, loc, true)
	if err != nil {
		return f, fmt.Errorf("invalid end_date: %w", err)
	}
	if start != nil && end != nil && start.After(*end) {
		return f, ErrInvalidDateRange
	}
	if start != nil || end != nil {
		f.DateRange = &model.DateRange{Start: start, End: end}
	}
	return f, nil
}

func parseBound(s string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return nil, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", s)
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	d = d.UTC()
	return &d, nil
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
