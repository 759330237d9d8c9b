package permission

import (
	"fmt"
	"strings"

	"github.com/cori-do/cori/internal/schema"
)

// TenancyKind is how a table's rows are partitioned by tenant.
type TenancyKind int

const (
	Unknown TenancyKind = iota
	Direct
	Inherited
	Global
)

func (k TenancyKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Inherited:
		return "inherited"
	case Global:
		return "global"
	default:
		return "unknown"
	}
}

// Hop is one step of an inherited-tenancy foreign-key chain.
type Hop struct {
	Table        string
	LocalColumn  string
	ForeignTable string
}

// Tenancy is the resolved tenancy rule for a table.
type Tenancy struct {
	Kind TenancyKind
	// Column is the Direct column on this table, or — for Inherited —
	// the terminal Direct column name on the last table in Path.
	Column string
	// Path is the ordered FK chain from this table to the terminal
	// Direct table. Empty for Direct/Global/Unknown.
	Path []Hop
}

const maxInheritDepth = 3

// Model ties a role's permissions, the tenancy rules, and the schema
// together and answers C2's capability queries.
type Model struct {
	role   *Role
	rules  *Rules
	schema *schema.Schema

	tenancyCache map[string]Tenancy
}

// NewModel validates I2 (every table named by the role exists in the
// schema) and returns a ready Model, or an error naming the first
// violation found.
func NewModel(role *Role, rules *Rules, sch *schema.Schema) (*Model, error) {
	for table := range role.Tables {
		if _, ok := sch.Table(table); !ok {
			return nil, fmt.Errorf("role %q references unknown table %q", role.Name, table)
		}
	}
	return &Model{
		role:         role,
		rules:        rules,
		schema:       sch,
		tenancyCache: make(map[string]Tenancy),
	}, nil
}

// Resolve returns the role's permissions for table, or false if the
// role does not touch that table. Permission resolution never fails —
// a missing entry just means "no permission".
func (m *Model) Resolve(table string) (TablePermissions, bool) {
	tp, ok := m.role.Tables[table]
	return tp, ok
}

// ReadableColumns expands a ReadableConfig against the schema, per the
// decision that "*" is expanded eagerly and never propagated downstream.
func (m *Model) ReadableColumns(table string, cfg ReadableConfig) []string {
	if !cfg.All {
		return cfg.Columns
	}
	t, ok := m.schema.Table(table)
	if !ok {
		return nil
	}
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, c.Name)
	}
	return cols
}

// MaxPerPage returns the role's configured page-size cap for a table's
// list operation, or the default (1000) if unset.
func (m *Model) MaxPerPage(table string) int {
	tp, ok := m.Resolve(table)
	if !ok || tp.Readable.MaxPerPage <= 0 {
		return 1000
	}
	return tp.Readable.MaxPerPage
}

// CanReadColumn reports whether role may read column on table.
func (m *Model) CanReadColumn(table, column string) bool {
	tp, ok := m.Resolve(table)
	if !ok {
		return false
	}
	if tp.Readable.All {
		return true
	}
	for _, c := range tp.Readable.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// CanCreateColumn reports whether role may set column on create.
func (m *Model) CanCreateColumn(table, column string) bool {
	tp, ok := m.Resolve(table)
	if !ok {
		return false
	}
	if tp.Creatable.All {
		return true
	}
	_, ok = tp.Creatable.Columns[column]
	return ok
}

// CreatableConstraint returns the constraint for a creatable column, if any.
func (m *Model) CreatableConstraint(table, column string) (CreatableColumnConstraints, bool) {
	tp, ok := m.Resolve(table)
	if !ok || tp.Creatable.All {
		return CreatableColumnConstraints{}, false
	}
	c, ok := tp.Creatable.Columns[column]
	return c, ok
}

// CanUpdateColumn reports whether role may set column on update.
func (m *Model) CanUpdateColumn(table, column string) bool {
	tp, ok := m.Resolve(table)
	if !ok {
		return false
	}
	if tp.Updatable.All {
		return true
	}
	_, ok = tp.Updatable.Columns[column]
	return ok
}

// UpdatableConstraint returns the constraint for an updatable column, if any.
func (m *Model) UpdatableConstraint(table, column string) (UpdatableColumnConstraints, bool) {
	tp, ok := m.Resolve(table)
	if !ok || tp.Updatable.All {
		return UpdatableColumnConstraints{}, false
	}
	c, ok := tp.Updatable.Columns[column]
	return c, ok
}

// CanDelete reports whether role may delete rows on table at all.
func (m *Model) CanDelete(table string) bool {
	tp, ok := m.Resolve(table)
	return ok && tp.Deletable.Allowed
}

// TableRequiresApproval reports whether the table-level delete gate applies.
func (m *Model) TableRequiresApproval(table string) bool {
	tp, ok := m.Resolve(table)
	return ok && tp.Deletable.RequiresApproval
}

// TenantColumn resolves the tenancy rule for table, recursively
// following Inherited chains up to maxInheritDepth hops with cycle
// detection; an unresolvable chain maps to Unknown.
func (m *Model) TenantColumn(table string) Tenancy {
	if t, ok := m.tenancyCache[table]; ok {
		return t
	}
	t := m.resolveTenancy(table, nil, 0)
	m.tenancyCache[table] = t
	return t
}

func (m *Model) resolveTenancy(table string, path []Hop, depth int) Tenancy {
	if depth > maxInheritDepth {
		return Tenancy{Kind: Unknown}
	}
	for _, hop := range path {
		if hop.Table == table {
			return Tenancy{Kind: Unknown} // cycle
		}
	}

	rules, ok := m.rules.Tables[table]
	if !ok {
		return Tenancy{Kind: Unknown}
	}

	switch rules.Tenant.Kind {
	case Direct:
		return Tenancy{Kind: Direct, Column: rules.Tenant.Column}
	case Global:
		return Tenancy{Kind: Global}
	case Inherited:
		hop := Hop{Table: table, LocalColumn: rules.Tenant.Via, ForeignTable: rules.Tenant.References}
		nextPath := append(append([]Hop{}, path...), hop)
		sub := m.resolveTenancy(rules.Tenant.References, nextPath, depth+1)
		if sub.Kind == Unknown {
			return Tenancy{Kind: Unknown}
		}
		if sub.Kind == Global {
			return Tenancy{Kind: Global}
		}
		// sub.Kind == Direct or Inherited resolved further: flatten the
		// path and carry the terminal Direct column.
		fullPath := append(append([]Hop{}, []Hop{hop}...), sub.Path...)
		return Tenancy{Kind: Inherited, Column: sub.Column, Path: fullPath}
	default:
		return Tenancy{Kind: Unknown}
	}
}

// ApprovalColumnsForCreate returns the creatable columns in args whose
// constraint carries requires_approval.
func (m *Model) ApprovalColumnsForCreate(table string, args map[string]any) []string {
	var out []string
	for col := range args {
		if c, ok := m.CreatableConstraint(table, col); ok && c.RequiresApproval {
			out = append(out, col)
		}
	}
	return out
}

// ApprovalColumnsForUpdate returns the updatable columns in args whose
// constraint carries requires_approval.
func (m *Model) ApprovalColumnsForUpdate(table string, args map[string]any) []string {
	var out []string
	for col := range args {
		if c, ok := m.UpdatableConstraint(table, col); ok && c.RequiresApproval {
			out = append(out, col)
		}
	}
	return out
}

// ColumnRule returns the rules-document value-shape rule for a column,
// if the rules document declares one. Absence is not a failure — it
// just means the column carries no pattern/allowed_values check.
func (m *Model) ColumnRule(table, column string) (ColumnRule, bool) {
	if m.rules == nil {
		return ColumnRule{}, false
	}
	tr, ok := m.rules.Tables[table]
	if !ok {
		return ColumnRule{}, false
	}
	cr, ok := tr.Columns[column]
	return cr, ok
}

// RequiresCurrentRow reports whether any updatable column on table
// carries an only_when predicate referencing old.*, which means the
// orchestration layer must fetch the current row before validating an
// update against this role (see the before/after row snapshots design
// note: the validator stays pure, so this decision is made one layer
// up, lazily, only for tables that actually need it).
func (m *Model) RequiresCurrentRow(table string) bool {
	tp, ok := m.Resolve(table)
	if !ok || tp.Updatable.All {
		return false
	}
	for _, c := range tp.Updatable.Columns {
		for _, set := range c.OnlyWhen {
			for key := range set {
				if strings.HasPrefix(key, "old.") {
					return true
				}
			}
		}
	}
	return false
}
