// Package validate implements C4: per-call authorization and constraint
// evaluation against a resolved permission model. The validator is pure
// given its inputs — any row fetches happen in the orchestration layer
// that calls it (see the "before/after row snapshots" design note).
package validate

import (
	"regexp"
	"sort"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/cori-do/cori/internal/toolsynth"
)

const sentinelUnknownTenant = "unknown"

// Request is everything the validator needs to decide one call.
type Request struct {
	Operation  toolsynth.Operation
	Table      string
	Arguments  map[string]any
	TenantID   string
	RoleName   string
	CurrentRow map[string]any // nil unless an only_when references old.*
}

// Validator evaluates Requests against a resolved permission Model.
type Validator struct {
	model  *permission.Model
	schema *schema.Schema
	role   string
}

// New builds a Validator bound to the given role name, permission
// model, and schema.
func New(roleName string, model *permission.Model, sch *schema.Schema) *Validator {
	return &Validator{model: model, schema: sch, role: roleName}
}

// Validate runs the full validation order for req, stopping at the
// first error.
func (v *Validator) Validate(req Request) error {
	// 1. Role presence.
	if req.RoleName != v.role {
		return newErr(RoleNotFound, "role %q does not match the verified token role %q", req.RoleName, v.role)
	}

	// 2. Table access.
	tp, ok := v.model.Resolve(req.Table)
	if !ok {
		return newErr(TableNotInRole, "role %q has no permissions configured for table %q", v.role, req.Table)
	}

	table, tableOK := v.schema.Table(req.Table)

	// 3. Tenant configuration.
	tenancy := v.model.TenantColumn(req.Table)
	tenantScoped := tenancy.Kind == permission.Direct || tenancy.Kind == permission.Inherited
	if tenantScoped {
		if req.TenantID == "" || req.TenantID == sentinelUnknownTenant {
			return newErr(MissingTenant, "table %q is tenant-scoped but no tenant was supplied", req.Table)
		}
	}

	// 4. Operation-specific.
	switch req.Operation {
	case toolsynth.OpGet:
		if tableOK {
			if err := v.checkIdentifier(table, req.Arguments); err != nil {
				return err
			}
		}
	case toolsynth.OpList:
		// no further identity checks
	case toolsynth.OpCreate:
		if err := v.checkCreate(req.Table, tp, table, req.Arguments); err != nil {
			return err
		}
		if err := v.checkColumnRules(req.Table, table, req.Arguments); err != nil {
			return err
		}
	case toolsynth.OpUpdate:
		if tableOK {
			if err := v.checkIdentifier(table, req.Arguments); err != nil {
				return err
			}
		}
		if err := v.checkUpdate(req.Table, tp, req.Arguments, req.CurrentRow); err != nil {
			return err
		}
		if err := v.checkColumnRules(req.Table, table, req.Arguments); err != nil {
			return err
		}
	case toolsynth.OpDelete:
		if tableOK {
			if err := v.checkIdentifier(table, req.Arguments); err != nil {
				return err
			}
		}
		if !v.model.CanDelete(req.Table) {
			return newErr(DeleteNotAllowed, "role %q may not delete from %q", v.role, req.Table)
		}
	}

	return nil
}

func (v *Validator) checkIdentifier(table *schema.Table, args map[string]any) error {
	for _, pk := range table.PrimaryKey {
		if _, ok := args[pk]; !ok {
			return newErr(MissingIdentifier, "missing primary key column %q", pk)
		}
	}
	return nil
}

func (v *Validator) checkCreate(tableName string, tp permission.TablePermissions, table *schema.Table, args map[string]any) error {
	tenancy := v.model.TenantColumn(tableName)
	tenantCol := ""
	if tenancy.Kind == permission.Direct {
		tenantCol = tenancy.Column
	}

	satisfied := map[string]bool{}
	for col, val := range args {
		if col == tenantCol {
			continue
		}
		if !v.model.CanCreateColumn(tableName, col) {
			return newErr(ColumnNotCreatable, "column %q is not creatable by role %q", col, v.role)
		}
		if c, ok := v.model.CreatableConstraint(tableName, col); ok {
			if len(c.RestrictTo) > 0 && !memberOf(val, c.RestrictTo) {
				return newErr(ValueNotAllowed, "value for %q is not in the allowed set", col)
			}
		}
		satisfied[col] = true
	}

	if !tp.Creatable.All {
		for col, c := range tp.Creatable.Columns {
			if satisfied[col] {
				continue
			}
			hasDefault := c.Default != nil
			if !hasDefault && table != nil {
				if sc, ok := table.Column(col); ok {
					hasDefault = !sc.Nullable && sc.HasDefault
				}
			}
			if c.Required && !hasDefault {
				return newErr(RequiredFieldMissing, "required field %q missing", col)
			}
		}
	}
	return nil
}

func (v *Validator) checkUpdate(tableName string, tp permission.TablePermissions, args, current map[string]any) error {
	tenancy := v.model.TenantColumn(tableName)
	tenantCol := ""
	if tenancy.Kind == permission.Direct {
		tenantCol = tenancy.Column
	}

	// PK columns are validated by checkIdentifier; skip them here.
	pkSet := map[string]bool{}
	if t, ok := v.schema.Table(tableName); ok {
		for _, pk := range t.PrimaryKey {
			pkSet[pk] = true
		}
	}

	cols := make([]string, 0, len(args))
	for col := range args {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		if col == tenantCol || pkSet[col] {
			continue
		}
		if !v.model.CanUpdateColumn(tableName, col) {
			return newErr(ColumnNotUpdatable, "column %q is not updatable by role %q", col, v.role)
		}
		constraint, ok := v.model.UpdatableConstraint(tableName, col)
		if !ok || len(constraint.OnlyWhen) == 0 {
			if ok && constraint.OnlyWhen != nil && len(constraint.OnlyWhen) == 0 {
				return newErr(OnlyWhenViolation, "only_when for %q is an empty rule set; rejecting", col)
			}
			continue
		}
		ok, err := evaluateOnlyWhen(constraint.OnlyWhen, current, args)
		if err != nil {
			return err
		}
		if !ok {
			return newErr(OnlyWhenViolation, "only_when predicate for %q was not satisfied", col)
		}
	}
	_ = tp
	return nil
}

// checkColumnRules implements validation-order step 5: per-column
// pattern/allowed_values checks from the rules document, evaluated
// against the literal value supplied for each argument. The primary
// key and the table's tenant column are skipped — both are
// load-bearing identity, not agent-supplied content — and a column
// with no rules-document entry passes through untouched.
func (v *Validator) checkColumnRules(tableName string, table *schema.Table, args map[string]any) error {
	tenancy := v.model.TenantColumn(tableName)
	tenantCol := ""
	if tenancy.Kind == permission.Direct {
		tenantCol = tenancy.Column
	}
	pkSet := map[string]bool{}
	if table != nil {
		for _, pk := range table.PrimaryKey {
			pkSet[pk] = true
		}
	}

	cols := make([]string, 0, len(args))
	for col := range args {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		if col == tenantCol || pkSet[col] {
			continue
		}
		rule, ok := v.model.ColumnRule(tableName, col)
		if !ok {
			continue
		}
		val := args[col]
		if len(rule.AllowedValues) > 0 && !memberOf(val, rule.AllowedValues) {
			return newErr(ValueNotAllowed, "value for %q is not in the rules-allowed set", col)
		}
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return newErr(PatternViolation, "column %q has an invalid pattern rule: %v", col, err)
			}
			s, isStr := toString(val)
			if !isStr || !re.MatchString(s) {
				return newErr(PatternViolation, "value for %q does not match the required pattern", col)
			}
		}
	}
	return nil
}

func memberOf(val any, set []string) bool {
	s, ok := toString(val)
	if !ok {
		return false
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
