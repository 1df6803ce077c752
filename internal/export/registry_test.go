package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_Names(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		"users", "employees", "invoices", "expenses", "customers", "inventory",
		"leaves", "payroll", "work_reports", "calendar", "broadcast_groups", "broadcast_messages",
	}, r.Names())
}

func TestDefaultRegistry_DateFields(t *testing.T) {
	r := DefaultRegistry()
	tests := map[string]string{
		"users":        "created_at",
		"invoices":     "invoice_date",
		"expenses":     "expense_date",
		"payroll":      "payment_date",
		"leaves":       "start_date",
		"work_reports": "report_date",
		"customers":    "created_at",
	}
	for name, field := range tests {
		m, ok := r.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, field, m.DateField, name)
	}
}

func TestDefaultRegistry_UsersScopeByMembership(t *testing.T) {
	m, ok := DefaultRegistry().Lookup("users")
	require.True(t, ok)
	assert.Equal(t, ScopeMembership, m.Scope)
	assert.Equal(t, "memberships", m.ScopeField)

	inv, _ := DefaultRegistry().Lookup("inventory")
	assert.Equal(t, ScopeColumn, inv.Scope)
	assert.Equal(t, "inventory_items", inv.Table)
}

func TestRegistry_SelectAllWhenEmpty(t *testing.T) {
	r := DefaultRegistry()
	mods, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, mods, 12)
	assert.Equal(t, "users", mods[0].Name)
}

func TestRegistry_SelectKeepsRegistryOrder(t *testing.T) {
	r := DefaultRegistry()
	mods, err := r.Select([]string{"payroll", "customers", "payroll"})
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "customers", mods[0].Name)
	assert.Equal(t, "payroll", mods[1].Name)
}

func TestRegistry_SelectUnknown(t *testing.T) {
	_, err := DefaultRegistry().Select([]string{"customers", "spaceships"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModule)
	assert.Contains(t, err.Error(), "spaceships")
}

func TestModule_References(t *testing.T) {
	m, _ := DefaultRegistry().Lookup("invoices")

	ref, ok := m.Reference("customer_id")
	require.True(t, ok)
	assert.Equal(t, "customers", ref.Table)

	_, ok = m.Reference("items")
	assert.False(t, ok)

	nested, ok := m.NestedReference("items")
	require.True(t, ok)
	assert.Equal(t, "inventory_id", nested.Nested)
	assert.Equal(t, "inventory_items", nested.Table)
}
