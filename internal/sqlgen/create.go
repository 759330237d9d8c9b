package sqlgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/cori-do/cori/internal/toolsynth"
)

// Create implements the CREATE shape: FK verification queries first
// (see checkForeignKeys), then an INSERT ... RETURNING *. Verification
// -auxiliary arguments (named "<ref_table_singular>_<ref_col>") are
// consumed by the FK step and never appear in the INSERT.
func (e *Emitter) Create(ctx context.Context, table string, args map[string]any, tenant string) (*Result, error) {
	tp, _ := e.model.Resolve(table)

	insertArgs := make(map[string]any, len(args))
	for k, v := range args {
		insertArgs[k] = v
	}
	if err := e.checkForeignKeys(ctx, table, tp, insertArgs, tenant); err != nil {
		return nil, err
	}

	tenancy := e.model.TenantColumn(table)
	if tenancy.Kind == permission.Direct {
		if _, exists := insertArgs[tenancy.Column]; !exists {
			insertArgs[tenancy.Column] = tenant
		}
	}

	cols := make([]string, 0, len(insertArgs))
	for col := range insertArgs {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var placeholders []string
	var values []any
	quotedCols := make([]string, len(cols))
	for i, col := range cols {
		quotedCols[i] = quoteIdent(col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		values = append(values, insertArgs[col])
	}

	sqlText := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteIdent(table), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "),
	)
	rows, err := e.executor.QueryRows(ctx, sqlText, values...)
	if err != nil {
		return nil, newErr(DatabaseError, "%v", err)
	}
	var after map[string]any
	if len(rows) > 0 {
		after = rows[0]
	}
	return &Result{Rows: rows, ExecutedSQL: sqlText, AfterState: after}, nil
}

// checkForeignKeys runs the cross-tenant FK verification query for
// every creatable column carrying a ForeignKeyVerify constraint. Each
// verification-auxiliary argument is named
// "<singularized foreign table>_<verify column>" and is deleted from
// args once consumed.
func (e *Emitter) checkForeignKeys(ctx context.Context, table string, tp permission.TablePermissions, args map[string]any, tenant string) error {
	if tp.Creatable.All {
		return nil
	}
	cols := make([]string, 0, len(tp.Creatable.Columns))
	for col := range tp.Creatable.Columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		constraint := tp.Creatable.Columns[col]
		if constraint.ForeignKey == nil {
			continue
		}
		if _, present := args[col]; !present {
			continue
		}
		if err := e.verifyForeignKey(ctx, table, col, constraint.ForeignKey, args, tenant); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) verifyForeignKey(ctx context.Context, table, col string, fkVerify *permission.ForeignKeyVerify, args map[string]any, tenant string) error {
	t, ok := e.schema.Table(table)
	if !ok {
		return newErr(DatabaseError, "unknown table %q", table)
	}
	fk, ok := t.ForeignKeyOn(col)
	if !ok {
		return newErr(DatabaseError, "column %q has no foreign key declared in the schema", col)
	}

	foreignTenancy := e.model.TenantColumn(fk.ForeignTable)
	refSingular := toolsynth.Singularize(fk.ForeignTable)

	var where []string
	var values []any
	idx := 1
	if len(fk.ForeignColumns) > 0 {
		where = append(where, fmt.Sprintf("%s = $%d", quoteIdent(fk.ForeignColumns[0]), idx))
		values = append(values, args[col])
		idx++
	}
	if foreignTenancy.Kind == permission.Direct {
		where = append(where, fmt.Sprintf("%s = $%d", quoteIdent(foreignTenancy.Column), idx))
		values = append(values, tenant)
		idx++
	}
	for _, verifyCol := range fkVerify.VerifyWith {
		auxName := refSingular + "_" + verifyCol
		val, present := args[auxName]
		if !present {
			return newErr(ForeignKeyCrossTenant, "missing verification argument %q for foreign key on %q", auxName, col)
		}
		delete(args, auxName)
		where = append(where, fmt.Sprintf("%s = $%d", quoteIdent(verifyCol), idx))
		values = append(values, val)
		idx++
	}

	sqlText := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", quoteIdent(fk.ForeignTable), strings.Join(where, " AND "))
	rows, err := e.executor.QueryRows(ctx, sqlText, values...)
	if err != nil {
		return newErr(DatabaseError, "%v", err)
	}
	if len(rows) == 0 {
		return newErr(ForeignKeyCrossTenant, "referenced row for %q does not belong to the caller's tenant", col)
	}
	return nil
}

// softDeleteSetClause returns the "<col> = ..." fragment for a soft
// delete's UPDATE. A timestamp column gets the literal SQL now()
// expression rather than a bound parameter — Postgres rejects the
// string "now()" bound as a timestamp value — so hasValue is false and
// the caller must not append anything to its values slice for it.
func softDeleteSetClause(t *schema.Table, column string, paramIdx int) (clause string, value any, hasValue bool) {
	if c, ok := t.Column(column); ok {
		switch c.Type {
		case "timestamp", "timestamptz", "date":
			return fmt.Sprintf("%s = now()", quoteIdent(column)), nil, false
		}
	}
	return fmt.Sprintf("%s = $%d", quoteIdent(column), paramIdx), true, true
}
