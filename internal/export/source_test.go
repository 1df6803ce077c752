package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/tenant-backup/internal/model"
)

func TestBuildQuery_ColumnScope(t *testing.T) {
	m, _ := DefaultRegistry().Lookup("customers")
	sql, args := BuildQuery(Query{Module: m, TenantID: "c1"})

	assert.Equal(t, `SELECT to_jsonb(t) FROM "customers" AS t WHERE t."company_id" = $1 ORDER BY t.id`, sql)
	assert.Equal(t, []any{"c1"}, args)
}

func TestBuildQuery_MembershipScope(t *testing.T) {
	m, _ := DefaultRegistry().Lookup("users")
	sql, args := BuildQuery(Query{Module: m, TenantID: "c1"})

	assert.Contains(t, sql, `t."memberships" @> jsonb_build_array(jsonb_build_object('company_id', $1::text))`)
	assert.Equal(t, []any{"c1"}, args)
}

func TestBuildQuery_InclusiveDateRange(t *testing.T) {
	m, _ := DefaultRegistry().Lookup("payroll")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	sql, args := BuildQuery(Query{Module: m, TenantID: "c1", DateRange: &model.DateRange{Start: &start, End: &end}})

	assert.Contains(t, sql, `t."payment_date" >= $2`)
	assert.Contains(t, sql, `t."payment_date" <= $3`)
	assert.Equal(t, []any{"c1", start, end}, args)
}

func TestBuildQuery_OpenEndedRange(t *testing.T) {
	m, _ := DefaultRegistry().Lookup("invoices")
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	sql, args := BuildQuery(Query{Module: m, TenantID: "c1", DateRange: &model.DateRange{End: &end}})

	assert.NotContains(t, sql, ">=")
	assert.Contains(t, sql, `t."invoice_date" <= $2`)
	assert.Len(t, args, 2)
}

// stubQuerier returns canned rows of raw JSON.
type stubQuerier struct {
	rows [][]byte
	err  error
	sql  string
}

func (q *stubQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.sql = sql
	if q.err != nil {
		return nil, q.err
	}
	return &jsonRows{rows: q.rows, idx: -1}, nil
}

func (q *stubQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.sql = sql
	if len(q.rows) == 0 {
		return &jsonRow{err: pgx.ErrNoRows}
	}
	return &jsonRow{raw: q.rows[0], err: q.err}
}

type jsonRow struct {
	raw []byte
	err error
}

func (r *jsonRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.raw
	return nil
}

type jsonRows struct {
	rows [][]byte
	idx  int
}

func (r *jsonRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *jsonRows) Scan(dest ...any) error {
	*(dest[0].(*[]byte)) = r.rows[r.idx]
	return nil
}

func (r *jsonRows) Err() error                                   { return nil }
func (r *jsonRows) Close()                                       {}
func (r *jsonRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *jsonRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *jsonRows) RawValues() [][]byte                          { return nil }
func (r *jsonRows) Values() ([]any, error)                       { return nil, nil }
func (r *jsonRows) Conn() *pgx.Conn                              { return nil }

func TestPostgresSource_StreamDecodesNumbers(t *testing.T) {
	q := &stubQuerier{rows: [][]byte{
		[]byte(`{"id":"a","total":12.50}`),
		[]byte(`{"id":"b","total":3}`),
	}}
	src := NewPostgresSource(q)
	m, _ := DefaultRegistry().Lookup("invoices")

	var got []map[string]any
	err := src.Stream(context.Background(), Query{Module: m, TenantID: "c1"}, func(r map[string]any) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "12.50", got[0]["total"].(interface{ String() string }).String())
	assert.Contains(t, q.sql, `FROM "invoices"`)
}

func TestPostgresSource_StreamStopsOnCallbackError(t *testing.T) {
	q := &stubQuerier{rows: [][]byte{[]byte(`{"id":"a"}`), []byte(`{"id":"b"}`)}}
	src := NewPostgresSource(q)
	m, _ := DefaultRegistry().Lookup("customers")

	calls := 0
	boom := errors.New("boom")
	err := src.Stream(context.Background(), Query{Module: m, TenantID: "c1"}, func(map[string]any) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPostgresSource_QueryError(t *testing.T) {
	src := NewPostgresSource(&stubQuerier{err: errors.New("relation does not exist")})
	m, _ := DefaultRegistry().Lookup("customers")

	err := src.Stream(context.Background(), Query{Module: m, TenantID: "c1"}, func(map[string]any) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query customers")
}

func TestPostgresResolver_Resolve(t *testing.T) {
	q := &stubQuerier{rows: [][]byte{[]byte(`{"id":"c1","name":"Acme"}`)}}
	obj, err := NewPostgresResolver(q).Resolve(context.Background(), "customers", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", obj["name"])
	assert.Contains(t, q.sql, `FROM "customers" AS t WHERE t.id = $1`)
}

func TestPostgresResolver_NotFound(t *testing.T) {
	obj, err := NewPostgresResolver(&stubQuerier{}).Resolve(context.Background(), "customers", "missing")
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestReferenceCache_MemoisesHitsAndMisses(t *testing.T) {
	r := &memResolver{rows: map[string]map[string]any{"customers/c1": {"id": "c1", "name": "Acme"}}}
	cache := NewReferenceCache(r)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		obj, err := cache.Resolve(ctx, "customers", "c1")
		require.NoError(t, err)
		assert.Equal(t, "Acme", obj["name"])

		obj, err = cache.Resolve(ctx, "customers", "gone")
		require.NoError(t, err)
		assert.Nil(t, obj)
	}
	assert.Equal(t, 2, r.calls)
	entries, hits := cache.Stats()
	assert.Equal(t, 2, entries)
	assert.Equal(t, 4, hits)
}

func TestReferenceCache_ErrorsAreNotCached(t *testing.T) {
	r := &memResolver{err: errResolverDown}
	cache := NewReferenceCache(r)

	_, err := cache.Resolve(context.Background(), "customers", "c1")
	assert.ErrorIs(t, err, errResolverDown)
	_, err = cache.Resolve(context.Background(), "customers", "c1")
	assert.ErrorIs(t, err, errResolverDown)
	assert.Equal(t, 2, r.calls)
}
