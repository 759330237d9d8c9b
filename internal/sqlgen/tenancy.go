package sqlgen

import (
	"fmt"

	"github.com/cori-do/cori/internal/permission"
)

// tenantJoinPlan describes how to scope a SELECT (aliased as t0) by
// tenant: zero or more JOIN clauses through an Inherited chain, plus
// the predicate clause (missing its trailing placeholder number) and
// the bind value.
type tenantJoinPlan struct {
	joins      []string
	predicate  string // e.g. `t1."tenant_id" = ` — caller appends "$N"
	paramValue any
	applies    bool
}

// planTenantJoin resolves how to scope a SELECT against table by
// tenant, aliasing table itself as t0 and any Inherited hops as
// t1, t2, ….
func (e *Emitter) planTenantJoin(table, tenant string) (tenantJoinPlan, error) {
	tenancy := e.model.TenantColumn(table)
	switch tenancy.Kind {
	case permission.Global:
		return tenantJoinPlan{}, nil
	case permission.Unknown:
		return tenantJoinPlan{}, newErr(DatabaseError, "tenancy for table %q is unresolved", table)
	case permission.Direct:
		return tenantJoinPlan{
			applies:    true,
			predicate:  fmt.Sprintf("t0.%s = ", quoteIdent(tenancy.Column)),
			paramValue: tenant,
		}, nil
	}

	// Inherited: walk the path, joining each hop.
	var joins []string
	alias := "t0"
	currentTable := table
	for i, hop := range tenancy.Path {
		t, ok := e.schema.Table(currentTable)
		if !ok {
			return tenantJoinPlan{}, newErr(DatabaseError, "unknown table %q in tenancy path", currentTable)
		}
		fk, ok := t.ForeignKeyOn(hop.LocalColumn)
		if !ok || len(fk.ForeignColumns) == 0 {
			return tenantJoinPlan{}, newErr(DatabaseError, "missing foreign key for %q.%q", currentTable, hop.LocalColumn)
		}
		nextAlias := fmt.Sprintf("t%d", i+1)
		joins = append(joins, fmt.Sprintf(
			"JOIN %s AS %s ON %s.%s = %s.%s",
			quoteIdent(hop.ForeignTable), nextAlias,
			alias, quoteIdent(hop.LocalColumn),
			nextAlias, quoteIdent(fk.ForeignColumns[0]),
		))
		alias = nextAlias
		currentTable = hop.ForeignTable
	}

	return tenantJoinPlan{
		applies:    true,
		joins:      joins,
		predicate:  fmt.Sprintf("%s.%s = ", alias, quoteIdent(tenancy.Column)),
		paramValue: tenant,
	}, nil
}

// directTenantPredicate returns the inline "<col> = " predicate for
// mutating statements (UPDATE/DELETE target the bare table, no alias).
// It only handles Direct and Global tenancy: for Inherited tables, the
// before-state SELECT (which does support joins) has already confirmed
// the row belongs to the caller's tenant, and the primary key pins that
// exact row, so no further predicate is added to the mutating
// statement itself. The RETURNING row is not compared against an
// approval snapshot afterwards; the snapshot check in ExecuteApproved
// runs before the mutation is issued.
func (e *Emitter) directTenantPredicate(table, tenant string) (predicate string, value any, applies bool, err error) {
	tenancy := e.model.TenantColumn(table)
	switch tenancy.Kind {
	case permission.Direct:
		return quoteIdent(tenancy.Column) + " = ", tenant, true, nil
	case permission.Unknown:
		return "", nil, false, newErr(DatabaseError, "tenancy for table %q is unresolved", table)
	default:
		return "", nil, false, nil
	}
}
