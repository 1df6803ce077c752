package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/tenant-backup/internal/model"
)

// AppliedFilter records the predicate a module was exported with.
type AppliedFilter struct {
	TenantID   string     `json:"tenantId"`
	Table      string     `json:"table"`
	ScopeField string     `json:"scopeField"`
	ScopeKind  string     `json:"scopeKind"`
	DateField  string     `json:"dateField,omitempty"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
}

// Request carries the job-level inputs shared by every module of one job.
type Request struct {
	TenantID string
	Filters  model.BackupFilters
	// WorkDir holds spool files; empty means the system temp dir.
	WorkDir string
	// Refs is the job's reference cache. Export creates a private one when nil.
	Refs *ReferenceCache
}

// Exporter turns one module's records into a spooled JSON array and CSV rows.
type Exporter struct {
	source    Source
	resolver  Resolver
	formatter *Formatter
	logger    zerolog.Logger
}

func NewExporter(source Source, resolver Resolver, loc *time.Location, logger zerolog.Logger) *Exporter {
	return &Exporter{
		source:    source,
		resolver:  resolver,
		formatter: NewFormatter(loc),
		logger:    logger.With().Str("component", "exporter").Logger(),
	}
}

// NewReferenceCache returns a cache over the exporter's resolver, to be
// shared by all modules of one job.
func (e *Exporter) NewReferenceCache() *ReferenceCache {
	return NewReferenceCache(e.resolver)
}

// Export streams every record of m for the request's tenant. Any error
// discards the partial output.
func (e *Exporter) Export(ctx context.Context, req Request, m Module) (*ModuleResult, error) {
	refs := req.Refs
	if refs == nil {
		refs = e.NewReferenceCache()
	}

	q := Query{Module: m, TenantID: req.TenantID, DateRange: req.Filters.DateRange}
	filter := AppliedFilter{
		TenantID:   req.TenantID,
		Table:      m.Table,
		ScopeField: m.ScopeField,
		ScopeKind:  m.Scope.String(),
	}
	if q.DateRange != nil {
		filter.DateField = m.DateField
		filter.Start = q.DateRange.Start
		filter.End = q.DateRange.End
	}

	sp, err := newSpool(spoolDir(req.WorkDir), m.Name)
	if err != nil {
		return nil, err
	}

	includePII := req.Filters.IncludePII
	err = e.source.Stream(ctx, q, func(record map[string]any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		Sanitize(record, includePII)
		row, err := e.humanize(ctx, refs, m, record, includePII)
		if err != nil {
			return err
		}
		return sp.add(record, row)
	})
	if err != nil {
		sp.discard()
		return nil, err
	}

	result, err := sp.finish(m.Name, filter)
	if err != nil {
		return nil, err
	}

	entries, hits := refs.Stats()
	e.logger.Debug().
		Str("module", m.Name).
		Str("tenant_id", req.TenantID).
		Int("records", result.Count).
		Int("ref_entries", entries).
		Int("ref_hits", hits).
		Msg("module exported")
	return result, nil
}

// humanize classifies and formats every field of a sanitized record.
func (e *Exporter) humanize(ctx context.Context, refs *ReferenceCache, m Module, record map[string]any, includePII bool) (map[string]string, error) {
	row := make(map[string]string, len(record))
	for key, raw := range record {
		v, err := e.classify(ctx, refs, m, key, raw, includePII)
		if err != nil {
			return nil, err
		}
		row[key] = e.formatter.Format(v)
	}
	return row, nil
}

func (e *Exporter) classify(ctx context.Context, refs *ReferenceCache, m Module, key string, raw any, includePII bool) (Value, error) {
	if ref, ok := m.Reference(key); ok {
		id := scalarString(raw)
		if id == "" {
			return Classify(key, raw), nil
		}
		obj, err := e.lookup(ctx, refs, ref.Table, id, includePII)
		if err != nil {
			return Value{}, err
		}
		if obj == nil {
			return Text(id), nil
		}
		return Ref(obj), nil
	}

	if key == m.LineItems {
		if items, ok := raw.([]any); ok {
			return e.lineItems(ctx, refs, m, key, items, includePII)
		}
	}

	return Classify(key, raw), nil
}

func (e *Exporter) lineItems(ctx context.Context, refs *ReferenceCache, m Module, key string, items []any, includePII bool) (Value, error) {
	nested, hasRef := m.NestedReference(key)
	values := make([]Value, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			values = append(values, Classify(key, item))
			continue
		}
		var fallback string
		if hasRef {
			if id := scalarString(obj[nested.Nested]); id != "" {
				target, err := e.lookup(ctx, refs, nested.Table, id, includePII)
				if err != nil {
					return Value{}, err
				}
				if target != nil {
					fallback = DisplayName(target)
				}
			}
		}
		values = append(values, Line(NewLineItem(obj, fallback)))
	}
	return List(values), nil
}

// lookup resolves a reference through the job cache and applies the same
// redaction and masking as the exported record.
func (e *Exporter) lookup(ctx context.Context, refs *ReferenceCache, table, id string, includePII bool) (map[string]any, error) {
	obj, err := refs.Resolve(ctx, table, id)
	if err != nil {
		return nil, fmt.Errorf("resolve reference %s %s: %w", table, id, err)
	}
	if obj != nil {
		Sanitize(obj, includePII)
	}
	return obj, nil
}
