package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// scanFn fills the destinations of a single result row.
type scanFn func(dest ...any) error

// mockDB stands in for the pgx pool. Expectations are keyed on the
// argument slice so tests can pin the exact bind values of a statement.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	rows, _ := args.Get(0).(pgx.Rows)
	return rows, args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	return m.Called(ctx, sql, arguments).Get(0).(pgx.Row)
}

// commandTag builds the tag Postgres reports for verb touching n rows.
func commandTag(verb string, n int) pgconn.CommandTag {
	if verb == "INSERT" {
		return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", n))
	}
	return pgconn.NewCommandTag(fmt.Sprintf("%s %d", verb, n))
}

type mockRow struct {
	scanFunc scanFn
}

func (m *mockRow) Scan(dest ...any) error { return m.scanFunc(dest...) }

// errRow is a row whose Scan always fails with err.
func errRow(err error) *mockRow {
	return &mockRow{scanFunc: func(...any) error { return err }}
}

// mockRows yields one row per queued scan function, then reports err
// from Err.
type mockRows struct {
	pending []scanFn
	err     error
	closed  bool
}

func newMockRows(rows ...scanFn) *mockRows {
	return &mockRows{pending: rows}
}

func newEmptyMockRows() *mockRows { return &mockRows{} }

func (m *mockRows) Next() bool { return len(m.pending) > 0 && !m.closed }

func (m *mockRows) Scan(dest ...any) error {
	if len(m.pending) == 0 {
		return fmt.Errorf("scan past last row")
	}
	next := m.pending[0]
	m.pending = m.pending[1:]
	return next(dest...)
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       { m.closed = true }
func (m *mockRows) CommandTag() pgconn.CommandTag                { return commandTag("SELECT", 0) }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }
