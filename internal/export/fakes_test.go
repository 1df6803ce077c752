package export

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// memSource is an in-memory Source applying the same scope and inclusive
// date semantics as BuildQuery.
type memSource struct {
	tables map[string][]map[string]any
	err    error
}

func (s *memSource) Stream(ctx context.Context, q Query, fn func(map[string]any) error) error {
	if s.err != nil {
		return s.err
	}
	rows := append([]map[string]any(nil), s.tables[q.Module.Table]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i]["id"].(string) < rows[j]["id"].(string) })

	for _, row := range rows {
		if !inScope(q, row) || !inRange(q, row) {
			continue
		}
		// Round-trip through JSON so callers get fresh maps with json.Number.
		b, _ := json.Marshal(row)
		record, err := decodeRecord(b)
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

func inScope(q Query, row map[string]any) bool {
	if q.Module.Scope == ScopeMembership {
		memberships, _ := row[q.Module.ScopeField].([]any)
		for _, m := range memberships {
			if obj, ok := m.(map[string]any); ok && obj["company_id"] == q.TenantID {
				return true
			}
		}
		return false
	}
	return row[q.Module.ScopeField] == q.TenantID
}

func inRange(q Query, row map[string]any) bool {
	if q.DateRange == nil {
		return true
	}
	raw, _ := row[q.Module.DateField].(string)
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false
	}
	if q.DateRange.Start != nil && ts.Before(*q.DateRange.Start) {
		return false
	}
	if q.DateRange.End != nil && ts.After(*q.DateRange.End) {
		return false
	}
	return true
}

// memResolver resolves from a fixed table of rows and counts lookups.
type memResolver struct {
	rows  map[string]map[string]any
	err   error
	calls int
}

func (r *memResolver) Resolve(_ context.Context, table, id string) (map[string]any, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[table+"/"+id]
	if !ok {
		return nil, nil
	}
	cp := make(map[string]any, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp, nil
}

var errResolverDown = errors.New("resolver down")
