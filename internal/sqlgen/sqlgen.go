// Package sqlgen implements C5: converting a validated, typed tool call
// into a tenant-scoped, parameterized SQL statement, with before/after
// row snapshots for the audit sink. Identifiers (table/column names)
// are never taken from agent-supplied arguments — only from the schema
// and permission model, which are themselves operator-authored — and
// are always double-quoted; only values are ever parameterized from the
// call.
package sqlgen

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
)

// ErrorKind is the closed set of SQL-layer failures.
type ErrorKind string

const (
	DatabaseError         ErrorKind = "database_error"
	NotFoundOrWrongTenant ErrorKind = "not_found_or_wrong_tenant"
	NoUpdatableFields     ErrorKind = "no_updatable_fields"
	ForeignKeyCrossTenant ErrorKind = "foreign_key_cross_tenant"
)

// Error is the typed error the SQL layer returns.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func newErr(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Executor runs a parameterized query and collects the result rows.
// Implemented against pgxpool.Pool in production; fakeable in tests.
type Executor interface {
	QueryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
}

// Result is the outcome of one emitted operation.
type Result struct {
	Rows        []map[string]any
	ExecutedSQL string
	BeforeState map[string]any
	AfterState  map[string]any
}

// Emitter is C5, bound to one permission model, schema, and executor.
type Emitter struct {
	model    *permission.Model
	schema   *schema.Schema
	executor Executor
}

// New builds an Emitter.
func New(model *permission.Model, sch *schema.Schema, executor Executor) *Emitter {
	return &Emitter{model: model, schema: sch, executor: executor}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func readableColumnList(model *permission.Model, table string, tp permission.TablePermissions) string {
	cols := model.ReadableColumns(table, tp.Readable)
	if len(cols) == 0 {
		return "*"
	}
	sort.Strings(cols)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = "t0." + quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
