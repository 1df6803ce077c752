package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/tenant-backup/internal/model"
)

// Querier is the subset of *pgxpool.Pool used for reading tenant data.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Query describes the rows one module contributes to a job.
type Query struct {
	Module    Module
	TenantID  string
	DateRange *model.DateRange
}

// Source streams the records matching a Query, one at a time, ordered by id.
// Stream stops at the first error returned by fn.
type Source interface {
	Stream(ctx context.Context, q Query, fn func(record map[string]any) error) error
}

// PostgresSource reads records as to_jsonb rows over a forward-only cursor.
type PostgresSource struct {
	db Querier
}

func NewPostgresSource(db Querier) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Stream(ctx context.Context, q Query, fn func(record map[string]any) error) error {
	sql, args := BuildQuery(q)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("query %s: %w", q.Module.Table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan %s row: %w", q.Module.Table, err)
		}
		record, err := decodeRecord(raw)
		if err != nil {
			return fmt.Errorf("decode %s row: %w", q.Module.Table, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", q.Module.Table, err)
	}
	return nil
}

// BuildQuery renders the tenant-scoped, date-bounded SELECT for a module.
// Both date bounds are inclusive.
func BuildQuery(q Query) (string, []any) {
	m := q.Module
	table := pgx.Identifier{m.Table}.Sanitize()
	scope := pgx.Identifier{m.ScopeField}.Sanitize()

	var where []string
	args := []any{q.TenantID}
	if m.Scope == ScopeMembership {
		where = append(where, fmt.Sprintf("t.%s @> jsonb_build_array(jsonb_build_object('company_id', $1::text))", scope))
	} else {
		where = append(where, fmt.Sprintf("t.%s = $1", scope))
	}

	if q.DateRange != nil && m.DateField != "" {
		dateField := pgx.Identifier{m.DateField}.Sanitize()
		if q.DateRange.Start != nil {
			args = append(args, *q.DateRange.Start)
			where = append(where, fmt.Sprintf("t.%s >= $%d", dateField, len(args)))
		}
		if q.DateRange.End != nil {
			args = append(args, *q.DateRange.End)
			where = append(where, fmt.Sprintf("t.%s <= $%d", dateField, len(args)))
		}
	}

	sql := fmt.Sprintf("SELECT to_jsonb(t) FROM %s AS t WHERE %s ORDER BY t.id", table, strings.Join(where, " AND "))
	return sql, args
}

func decodeRecord(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	return record, nil
}
