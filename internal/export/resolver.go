package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Resolver looks up a referenced row by id. A missing row is reported as
// (nil, nil); only lookup failures return an error.
type Resolver interface {
	Resolve(ctx context.Context, table, id string) (map[string]any, error)
}

// PostgresResolver resolves references with a primary-key lookup.
type PostgresResolver struct {
	db Querier
}

func NewPostgresResolver(db Querier) *PostgresResolver {
	return &PostgresResolver{db: db}
}

func (r *PostgresResolver) Resolve(ctx context.Context, table, id string) (map[string]any, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT to_jsonb(t) FROM %s AS t WHERE t.id = $1", pgx.Identifier{table}.Sanitize()), id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s %s: %w", table, id, err)
	}
	record, err := decodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return record, nil
}

// ReferenceCache memoises resolved references for the lifetime of one job.
// Lookups within a job are sequential so it is not safe for concurrent use.
type ReferenceCache struct {
	resolver Resolver
	entries  map[string]map[string]any
	hits     int
}

func NewReferenceCache(resolver Resolver) *ReferenceCache {
	return &ReferenceCache{
		resolver: resolver,
		entries:  make(map[string]map[string]any),
	}
}

// Resolve returns the cached row or asks the underlying resolver. Misses are
// cached too so an absent row is looked up once per job.
func (c *ReferenceCache) Resolve(ctx context.Context, table, id string) (map[string]any, error) {
	key := table + "/" + id
	if obj, ok := c.entries[key]; ok {
		c.hits++
		return obj, nil
	}
	obj, err := c.resolver.Resolve(ctx, table, id)
	if err != nil {
		return nil, err
	}
	c.entries[key] = obj
	return obj, nil
}

// Stats returns the number of distinct lookups and cache hits so far.
func (c *ReferenceCache) Stats() (entries, hits int) {
	return len(c.entries), c.hits
}
