package permission

import (
	"encoding/json"
	"testing"

	"github.com/cori-do/cori/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *schema.Schema {
	return &schema.Schema{Tables: map[string]*schema.Table{
		"customers": {Name: "customers", PrimaryKey: []string{"id"}, Columns: []schema.Column{
			{Name: "id", Type: "integer"}, {Name: "tenant_id", Type: "string"}, {Name: "email", Type: "string"},
		}},
		"orders": {Name: "orders", PrimaryKey: []string{"id"}, Columns: []schema.Column{
			{Name: "id", Type: "integer"}, {Name: "customer_id", Type: "integer"},
		}},
		"order_items": {Name: "order_items", PrimaryKey: []string{"id"}, Columns: []schema.Column{
			{Name: "id", Type: "integer"}, {Name: "order_id", Type: "integer"},
		}},
		"plans": {Name: "plans", Columns: []schema.Column{{Name: "id", Type: "integer"}}},
	}}
}

func testRules() *Rules {
	return &Rules{Tables: map[string]TableRules{
		"customers":   {Tenant: TenancyDecl{Kind: Direct, Column: "tenant_id"}},
		"orders":      {Tenant: TenancyDecl{Kind: Inherited, Via: "customer_id", References: "customers"}},
		"order_items": {Tenant: TenancyDecl{Kind: Inherited, Via: "order_id", References: "orders"}},
		"plans":       {Tenant: TenancyDecl{Kind: Global}},
	}}
}

func TestTenancyResolutionDirectInheritedGlobalUnknown(t *testing.T) {
	role := &Role{Name: "support_agent", Tables: map[string]TablePermissions{
		"customers":   {},
		"orders":      {},
		"order_items": {},
		"plans":       {},
	}}
	m, err := NewModel(role, testRules(), testSchema())
	require.NoError(t, err)

	assert.Equal(t, Direct, m.TenantColumn("customers").Kind)
	assert.Equal(t, "tenant_id", m.TenantColumn("customers").Column)

	orders := m.TenantColumn("orders")
	assert.Equal(t, Inherited, orders.Kind)
	assert.Equal(t, "tenant_id", orders.Column)
	require.Len(t, orders.Path, 1)
	assert.Equal(t, "customers", orders.Path[0].ForeignTable)

	items := m.TenantColumn("order_items")
	assert.Equal(t, Inherited, items.Kind)
	assert.Equal(t, "tenant_id", items.Column)
	require.Len(t, items.Path, 2)

	assert.Equal(t, Global, m.TenantColumn("plans").Kind)
	assert.Equal(t, Unknown, m.TenantColumn("nonexistent_table").Kind)
}

func TestNewModelRejectsUnknownTable(t *testing.T) {
	role := &Role{Name: "r", Tables: map[string]TablePermissions{"ghost": {}}}
	_, err := NewModel(role, testRules(), testSchema())
	require.Error(t, err)
}

func TestReadableColumnsExpandsStar(t *testing.T) {
	role := &Role{Name: "r", Tables: map[string]TablePermissions{
		"customers": {Readable: ReadableConfig{All: true}},
	}}
	m, err := NewModel(role, testRules(), testSchema())
	require.NoError(t, err)
	tp, _ := m.Resolve("customers")
	cols := m.ReadableColumns("customers", tp.Readable)
	assert.ElementsMatch(t, []string{"id", "tenant_id", "email"}, cols)
}

func TestOnlyWhenUnmarshalAcceptsObjectOrList(t *testing.T) {
	var single OnlyWhen
	require.NoError(t, json.Unmarshal([]byte(`{"old.status":"open"}`), &single))
	require.Len(t, single, 1)

	var list OnlyWhen
	require.NoError(t, json.Unmarshal([]byte(`[{"old.status":"open"},{"old.status":"in_progress"}]`), &list))
	require.Len(t, list, 2)
}

func TestDeletablePermissionUnmarshal(t *testing.T) {
	var boolForm DeletablePermission
	require.NoError(t, json.Unmarshal([]byte(`true`), &boolForm))
	assert.True(t, boolForm.Allowed)
	assert.False(t, boolForm.RequiresApproval)

	var objForm DeletablePermission
	require.NoError(t, json.Unmarshal([]byte(`{"requires_approval":true,"soft_delete":"deleted_at"}`), &objForm))
	assert.True(t, objForm.Allowed)
	assert.True(t, objForm.RequiresApproval)
	assert.Equal(t, "deleted_at", objForm.SoftDeleteColumn)
}
