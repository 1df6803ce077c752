package export

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownModule is returned by Select for names not in the registry.
var ErrUnknownModule = errors.New("unknown module")

// ScopeKind selects how a module's rows are matched to a tenant.
type ScopeKind int

const (
	// ScopeColumn matches rows whose scope column equals the tenant id.
	ScopeColumn ScopeKind = iota
	// ScopeMembership matches rows whose scope column is a JSON array of
	// membership objects containing {"company_id": tenant}.
	ScopeMembership
)

func (k ScopeKind) String() string {
	if k == ScopeMembership {
		return "membership"
	}
	return "column"
}

// Reference declares that Field holds the id of a row in Table. When Nested
// is set, Field is an array of objects and Nested names the id field inside
// each element.
type Reference struct {
	Field  string
	Table  string
	Nested string
}

// Module is one logical export unit backed by a single table.
type Module struct {
	Name       string
	Table      string
	ScopeField string
	Scope      ScopeKind
	DateField  string
	References []Reference
	// LineItems names an array field whose elements render as invoice lines.
	LineItems string
}

// Reference returns the top-level reference declared for field, if any.
func (m Module) Reference(field string) (Reference, bool) {
	for _, ref := range m.References {
		if ref.Field == field && ref.Nested == "" {
			return ref, true
		}
	}
	return Reference{}, false
}

// NestedReference returns the reference declared for elements of field.
func (m Module) NestedReference(field string) (Reference, bool) {
	for _, ref := range m.References {
		if ref.Field == field && ref.Nested != "" {
			return ref, true
		}
	}
	return Reference{}, false
}

// Registry is the fixed table of exportable modules. It is built once at
// startup and shared read-only.
type Registry struct {
	modules []Module
	index   map[string]int
}

func NewRegistry(modules ...Module) *Registry {
	r := &Registry{
		modules: modules,
		index:   make(map[string]int, len(modules)),
	}
	for i, m := range modules {
		r.index[m.Name] = i
	}
	return r
}

func (r *Registry) Lookup(name string) (Module, bool) {
	i, ok := r.index[name]
	if !ok {
		return Module{}, false
	}
	return r.modules[i], true
}

// Names returns the module names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.modules))
	for i, m := range r.modules {
		names[i] = m.Name
	}
	return names
}

// Select returns the named modules in registry order, or every module when
// names is empty. Duplicates are collapsed.
func (r *Registry) Select(names []string) ([]Module, error) {
	if len(names) == 0 {
		out := make([]Module, len(r.modules))
		copy(out, r.modules)
		return out, nil
	}

	want := make(map[string]bool, len(names))
	var unknown []string
	for _, n := range names {
		if _, ok := r.index[n]; !ok {
			unknown = append(unknown, n)
			continue
		}
		want[n] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, strings.Join(unknown, ", "))
	}

	var out []Module
	for _, m := range r.modules {
		if want[m.Name] {
			out = append(out, m)
		}
	}
	return out, nil
}

func companyRef() Reference { return Reference{Field: "company_id", Table: "companies"} }

// DefaultRegistry returns the modules of the business database.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Module{
			Name: "users", Table: "users",
			ScopeField: "memberships", Scope: ScopeMembership,
			DateField: "created_at",
		},
		Module{
			Name: "employees", Table: "employees",
			ScopeField: "company_id", DateField: "created_at",
			References: []Reference{
				companyRef(),
				{Field: "user_id", Table: "users"},
			},
		},
		Module{
			Name: "invoices", Table: "invoices",
			ScopeField: "company_id", DateField: "invoice_date",
			References: []Reference{
				companyRef(),
				{Field: "customer_id", Table: "customers"},
				{Field: "created_by", Table: "users"},
				{Field: "items", Table: "inventory_items", Nested: "inventory_id"},
			},
			LineItems: "items",
		},
		Module{
			Name: "expenses", Table: "expenses",
			ScopeField: "company_id", DateField: "expense_date",
			References: []Reference{
				companyRef(),
				{Field: "employee_id", Table: "employees"},
				{Field: "created_by", Table: "users"},
			},
		},
		Module{
			Name: "customers", Table: "customers",
			ScopeField: "company_id", DateField: "created_at",
			References: []Reference{
				companyRef(),
				{Field: "created_by", Table: "users"},
			},
		},
		Module{
			Name: "inventory", Table: "inventory_items",
			ScopeField: "company_id", DateField: "created_at",
			References: []Reference{companyRef()},
		},
		Module{
			Name: "leaves", Table: "leave_requests",
			ScopeField: "company_id", DateField: "start_date",
			References: []Reference{
				companyRef(),
				{Field: "employee_id", Table: "employees"},
			},
		},
		Module{
			Name: "payroll", Table: "payroll_records",
			ScopeField: "company_id", DateField: "payment_date",
			References: []Reference{
				companyRef(),
				{Field: "employee_id", Table: "employees"},
			},
		},
		Module{
			Name: "work_reports", Table: "work_reports",
			ScopeField: "company_id", DateField: "report_date",
			References: []Reference{
				companyRef(),
				{Field: "employee_id", Table: "employees"},
			},
		},
		Module{
			Name: "calendar", Table: "calendar_events",
			ScopeField: "company_id", DateField: "created_at",
			References: []Reference{
				companyRef(),
				{Field: "created_by", Table: "users"},
			},
		},
		Module{
			Name: "broadcast_groups", Table: "broadcast_groups",
			ScopeField: "company_id", DateField: "created_at",
			References: []Reference{
				companyRef(),
				{Field: "created_by", Table: "users"},
			},
		},
		Module{
			Name: "broadcast_messages", Table: "broadcast_messages",
			ScopeField: "company_id", DateField: "created_at",
			References: []Reference{
				companyRef(),
				{Field: "group_id", Table: "broadcast_groups"},
				{Field: "sender_id", Table: "users"},
			},
		},
	)
}
