package sqlgen

import (
	"context"
	"strings"
	"testing"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor captures every SQL text and its bound args, and returns
// canned rows keyed by call index.
type fakeExecutor struct {
	calls []capturedCall
	rows  [][]map[string]any
}

type capturedCall struct {
	sql  string
	args []any
}

func (f *fakeExecutor) QueryRows(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, capturedCall{sql: sqlText, args: args})
	if idx < len(f.rows) {
		return f.rows[idx], nil
	}
	return nil, nil
}

func ticketSchema() *schema.Schema {
	return &schema.Schema{Tables: map[string]*schema.Table{
		"customers": {Name: "customers", PrimaryKey: []string{"id"}, Columns: []schema.Column{
			{Name: "id", Type: "integer"}, {Name: "tenant_id", Type: "string"},
		}},
		"tickets": {
			Name: "tickets", PrimaryKey: []string{"id"},
			Columns: []schema.Column{
				{Name: "id", Type: "integer"}, {Name: "customer_id", Type: "integer"},
				{Name: "status", Type: "string"}, {Name: "deleted_at", Type: "timestamp", Nullable: true},
			},
			ForeignKeys: []schema.ForeignKey{
				{Columns: []string{"customer_id"}, ForeignTable: "customers", ForeignColumns: []string{"id"}},
			},
		},
	}}
}

func ticketRules() *permission.Rules {
	return &permission.Rules{Tables: map[string]permission.TableRules{
		"customers": {Tenant: permission.TenancyDecl{Kind: permission.Direct, Column: "tenant_id"}},
		"tickets":   {Tenant: permission.TenancyDecl{Kind: permission.Inherited, Via: "customer_id", References: "customers"}},
	}}
}

func newEmitter(t *testing.T, tp permission.TablePermissions, table string, exec *fakeExecutor) *Emitter {
	t.Helper()
	role := &permission.Role{Name: "agent", Tables: map[string]permission.TablePermissions{table: tp}}
	model, err := permission.NewModel(role, ticketRules(), ticketSchema())
	require.NoError(t, err)
	return New(model, ticketSchema(), exec)
}

func TestGetAppliesInheritedTenantJoin(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1), "status": "open"}},
	}}
	e := newEmitter(t, permission.TablePermissions{Readable: permission.ReadableConfig{All: true}}, "tickets", exec)

	res, err := e.Get(context.Background(), "tickets", map[string]any{"id": 1}, "acme")
	require.NoError(t, err)
	assert.Contains(t, res.ExecutedSQL, "JOIN")
	assert.Contains(t, res.ExecutedSQL, `"tenant_id"`)
	assert.Equal(t, []any{1, "acme"}, exec.calls[0].args)
}

func TestGetNoMatchingRowsIsNotFoundOrWrongTenant(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{{}}}
	e := newEmitter(t, permission.TablePermissions{Readable: permission.ReadableConfig{All: true}}, "tickets", exec)

	_, err := e.Get(context.Background(), "tickets", map[string]any{"id": 99}, "acme")
	require.Error(t, err)
	var sqlErr *Error
	require.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, NotFoundOrWrongTenant, sqlErr.Kind)
}

func TestUpdateRejectsWhenNoUpdatableColumnsPresent(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1), "status": "open"}},
	}}
	e := newEmitter(t, permission.TablePermissions{
		Readable:  permission.ReadableConfig{All: true},
		Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{"status": {}}},
	}, "tickets", exec)

	_, err := e.Update(context.Background(), "tickets", map[string]any{"id": 1}, map[string]any{"customer_id": 5}, "acme")
	require.Error(t, err)
	var sqlErr *Error
	require.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, NoUpdatableFields, sqlErr.Kind)
}

func TestUpdateEmitsSetClauseAndReturnsSnapshots(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1), "status": "open"}},        // Get (before-state)
		{{"id": int64(1), "status": "closed"}},       // UPDATE ... RETURNING
	}}
	e := newEmitter(t, permission.TablePermissions{
		Readable:  permission.ReadableConfig{All: true},
		Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{"status": {}}},
	}, "tickets", exec)

	res, err := e.Update(context.Background(), "tickets", map[string]any{"id": 1}, map[string]any{"status": "closed"}, "acme")
	require.NoError(t, err)
	assert.Equal(t, "open", res.BeforeState["status"])
	assert.Equal(t, "closed", res.AfterState["status"])
	assert.Contains(t, exec.calls[1].sql, `SET "status" = $1`)
}

func TestDeleteWithSoftDeleteColumnEmitsUpdate(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1), "status": "open"}},
		{{"id": int64(1)}},
	}}
	e := newEmitter(t, permission.TablePermissions{
		Readable:  permission.ReadableConfig{All: true},
		Deletable: permission.DeletablePermission{Allowed: true, SoftDeleteColumn: "deleted_at"},
	}, "tickets", exec)

	res, err := e.Delete(context.Background(), "tickets", map[string]any{"id": 1}, "acme", "deleted_at")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ExecutedSQL, "UPDATE"))
	assert.Contains(t, res.ExecutedSQL, `"deleted_at" = now()`)
}

func TestDeleteWithoutSoftDeleteColumnEmitsHardDelete(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1), "status": "open"}},
		{{"id": int64(1)}},
	}}
	e := newEmitter(t, permission.TablePermissions{
		Readable:  permission.ReadableConfig{All: true},
		Deletable: permission.DeletablePermission{Allowed: true},
	}, "tickets", exec)

	res, err := e.Delete(context.Background(), "tickets", map[string]any{"id": 1}, "acme", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ExecutedSQL, "DELETE"))
}

func TestCreateInjectsDirectTenantColumn(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(7), "tenant_id": "acme"}},
	}}
	e := newEmitter(t, permission.TablePermissions{
		Creatable: permission.CreatableColumns{All: true},
	}, "customers", exec)

	res, err := e.Create(context.Background(), "customers", map[string]any{}, "acme")
	require.NoError(t, err)
	assert.Contains(t, res.ExecutedSQL, `"tenant_id"`)
	assert.Contains(t, exec.calls[0].args, "acme")
}

func TestCreateForeignKeyCrossTenantBlocked(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{}, // FK verification query returns no matching row
	}}
	e := newEmitter(t, permission.TablePermissions{
		Creatable: permission.CreatableColumns{Columns: map[string]permission.CreatableColumnConstraints{
			"customer_id": {ForeignKey: &permission.ForeignKeyVerify{}},
		}},
	}, "tickets", exec)

	_, err := e.Create(context.Background(), "tickets", map[string]any{"customer_id": 1}, "acme")
	require.Error(t, err)
	var sqlErr *Error
	require.ErrorAs(t, err, &sqlErr)
	assert.Equal(t, ForeignKeyCrossTenant, sqlErr.Kind)
}

func TestCreateForeignKeySameTenantSucceeds(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1)}},                 // FK verification query matches
		{{"id": int64(99), "customer_id": int64(1)}}, // INSERT ... RETURNING
	}}
	e := newEmitter(t, permission.TablePermissions{
		Creatable: permission.CreatableColumns{Columns: map[string]permission.CreatableColumnConstraints{
			"customer_id": {ForeignKey: &permission.ForeignKeyVerify{}},
		}},
	}, "tickets", exec)

	res, err := e.Create(context.Background(), "tickets", map[string]any{"customer_id": 1}, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(99), res.AfterState["id"])
}
