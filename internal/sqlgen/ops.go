package sqlgen

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Get implements the GET shape: SELECT <readable_cols|*> FROM <T> WHERE
// <pk = val> [AND <tenant_col = token_tenant>] LIMIT 1.
func (e *Emitter) Get(ctx context.Context, table string, pk map[string]any, tenant string) (*Result, error) {
	t, ok := e.schema.Table(table)
	if !ok {
		return nil, newErr(DatabaseError, "unknown table %q", table)
	}
	tp, _ := e.model.Resolve(table)

	var where []string
	var args []any
	idx := 1
	for _, col := range t.PrimaryKey {
		where = append(where, fmt.Sprintf("t0.%s = $%d", quoteIdent(col), idx))
		args = append(args, pk[col])
		idx++
	}

	plan, err := e.planTenantJoin(table, tenant)
	if err != nil {
		return nil, err
	}
	if plan.applies {
		where = append(where, plan.predicate+fmt.Sprintf("$%d", idx))
		args = append(args, plan.paramValue)
		idx++
	}

	sqlText := fmt.Sprintf(
		"SELECT %s FROM %s AS t0 %s WHERE %s LIMIT 1",
		readableColumnList(e.model, table, tp), quoteIdent(table),
		strings.Join(plan.joins, " "), strings.Join(where, " AND "),
	)
	rows, err := e.executor.QueryRows(ctx, sqlText, args...)
	if err != nil {
		return nil, newErr(DatabaseError, "%v", err)
	}
	if len(rows) == 0 {
		return nil, newErr(NotFoundOrWrongTenant, "no row matches the given identifier for this tenant")
	}
	return &Result{Rows: rows, ExecutedSQL: sqlText}, nil
}

// List implements the LIST shape: pagination plus optional filters over
// readable, scalar-typed columns.
func (e *Emitter) List(ctx context.Context, table string, filters map[string]any, limit, offset int, tenant string) (*Result, error) {
	tp, _ := e.model.Resolve(table)
	t, ok := e.schema.Table(table)
	if !ok {
		return nil, newErr(DatabaseError, "unknown table %q", table)
	}

	maxPerPage := e.model.MaxPerPage(table)
	if limit <= 0 || limit > maxPerPage {
		limit = maxPerPage
	}
	if offset < 0 {
		offset = 0
	}

	var where []string
	var args []any
	idx := 1

	plan, err := e.planTenantJoin(table, tenant)
	if err != nil {
		return nil, err
	}
	if plan.applies {
		where = append(where, plan.predicate+fmt.Sprintf("$%d", idx))
		args = append(args, plan.paramValue)
		idx++
	}

	readable := map[string]bool{}
	for _, c := range e.model.ReadableColumns(table, tp.Readable) {
		readable[c] = true
	}
	filterCols := make([]string, 0, len(filters))
	for col := range filters {
		filterCols = append(filterCols, col)
	}
	sort.Strings(filterCols)
	for _, col := range filterCols {
		sc, ok := t.Column(col)
		if !readable[col] || !ok || !isScalarFilterable(sc.Type) {
			continue
		}
		where = append(where, fmt.Sprintf("t0.%s = $%d", quoteIdent(col), idx))
		args = append(args, filters[col])
		idx++
	}

	whereClause := "TRUE"
	if len(where) > 0 {
		whereClause = strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	sqlText := fmt.Sprintf(
		"SELECT %s FROM %s AS t0 %s WHERE %s LIMIT $%d OFFSET $%d",
		readableColumnList(e.model, table, tp), quoteIdent(table),
		strings.Join(plan.joins, " "), whereClause, idx, idx+1,
	)
	rows, err := e.executor.QueryRows(ctx, sqlText, args...)
	if err != nil {
		return nil, newErr(DatabaseError, "%v", err)
	}
	return &Result{Rows: rows, ExecutedSQL: sqlText}, nil
}

func isScalarFilterable(t string) bool {
	switch t {
	case "json", "jsonb", "array":
		return false
	default:
		return true
	}
}

// Update implements the UPDATE shape: a before-state SELECT, then an
// UPDATE ... RETURNING *. Columns not in updatable are silently dropped
// (the orchestrator is expected to have already validated this call
// with C4, so this is a defense-in-depth filter, not primary
// enforcement).
func (e *Emitter) Update(ctx context.Context, table string, pk, args map[string]any, tenant string) (*Result, error) {
	t, ok := e.schema.Table(table)
	if !ok {
		return nil, newErr(DatabaseError, "unknown table %q", table)
	}

	before, err := e.Get(ctx, table, pk, tenant)
	if err != nil {
		return nil, err
	}
	beforeState := map[string]any{}
	if len(before.Rows) > 0 {
		beforeState = before.Rows[0]
	}

	setCols := make([]string, 0, len(args))
	for col := range args {
		if e.model.CanUpdateColumn(table, col) {
			setCols = append(setCols, col)
		}
	}
	if len(setCols) == 0 {
		return nil, newErr(NoUpdatableFields, "no updatable columns present in arguments")
	}
	sort.Strings(setCols)

	var setClauses []string
	var values []any
	idx := 1
	for _, col := range setCols {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", quoteIdent(col), idx))
		values = append(values, args[col])
		idx++
	}

	var where []string
	for _, col := range t.PrimaryKey {
		where = append(where, fmt.Sprintf("%s = $%d", quoteIdent(col), idx))
		values = append(values, pk[col])
		idx++
	}
	predicate, value, applies, err := e.directTenantPredicate(table, tenant)
	if err != nil {
		return nil, err
	}
	if applies {
		where = append(where, predicate+fmt.Sprintf("$%d", idx))
		values = append(values, value)
		idx++
	}

	sqlText := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s RETURNING *",
		quoteIdent(table), strings.Join(setClauses, ", "), strings.Join(where, " AND "),
	)
	rows, err := e.executor.QueryRows(ctx, sqlText, values...)
	if err != nil {
		return nil, newErr(DatabaseError, "%v", err)
	}
	if len(rows) == 0 {
		return nil, newErr(NotFoundOrWrongTenant, "no row matches the given identifier for this tenant")
	}
	return &Result{Rows: rows, ExecutedSQL: sqlText, BeforeState: beforeState, AfterState: rows[0]}, nil
}

// Delete implements the DELETE shape: a before-state SELECT, then
// either a hard DELETE ... RETURNING <pk cols> or, when the table
// configures a soft-delete column, an UPDATE of that column instead.
func (e *Emitter) Delete(ctx context.Context, table string, pk map[string]any, tenant string, softDeleteColumn string) (*Result, error) {
	t, ok := e.schema.Table(table)
	if !ok {
		return nil, newErr(DatabaseError, "unknown table %q", table)
	}

	before, err := e.Get(ctx, table, pk, tenant)
	if err != nil {
		return nil, err
	}
	beforeState := map[string]any{}
	if len(before.Rows) > 0 {
		beforeState = before.Rows[0]
	}

	var where []string
	var values []any
	idx := 1
	for _, col := range t.PrimaryKey {
		where = append(where, fmt.Sprintf("%s = $%d", quoteIdent(col), idx))
		values = append(values, pk[col])
		idx++
	}
	predicate, value, applies, err := e.directTenantPredicate(table, tenant)
	if err != nil {
		return nil, err
	}
	if applies {
		where = append(where, predicate+fmt.Sprintf("$%d", idx))
		values = append(values, value)
		idx++
	}

	pkCols := make([]string, len(t.PrimaryKey))
	for i, c := range t.PrimaryKey {
		pkCols[i] = quoteIdent(c)
	}

	var sqlText string
	if softDeleteColumn != "" {
		setClause, setValue, hasValue := softDeleteSetClause(t, softDeleteColumn, idx)
		if hasValue {
			values = append(values, setValue)
		}
		sqlText = fmt.Sprintf(
			"UPDATE %s SET %s WHERE %s RETURNING %s",
			quoteIdent(table), setClause, strings.Join(where, " AND "), strings.Join(pkCols, ", "),
		)
	} else {
		sqlText = fmt.Sprintf(
			"DELETE FROM %s WHERE %s RETURNING %s",
			quoteIdent(table), strings.Join(where, " AND "), strings.Join(pkCols, ", "),
		)
	}

	rows, err := e.executor.QueryRows(ctx, sqlText, values...)
	if err != nil {
		return nil, newErr(DatabaseError, "%v", err)
	}
	if len(rows) == 0 {
		return nil, newErr(NotFoundOrWrongTenant, "no row matches the given identifier for this tenant")
	}
	return &Result{Rows: rows, ExecutedSQL: sqlText, BeforeState: beforeState}, nil
}
