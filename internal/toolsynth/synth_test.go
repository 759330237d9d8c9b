package toolsynth

import (
	"testing"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() *schema.Schema {
	return &schema.Schema{Tables: map[string]*schema.Table{
		"customers": {
			Name:       "customers",
			PrimaryKey: []string{"id"},
			Columns: []schema.Column{
				{Name: "id", Type: "integer"},
				{Name: "tenant_id", Type: "string"},
				{Name: "email", Type: "string"},
			},
		},
		"plans": {
			Name:    "plans",
			Columns: []schema.Column{{Name: "id", Type: "integer"}, {Name: "name", Type: "string"}},
		},
	}}
}

func sampleRules() *permission.Rules {
	return &permission.Rules{Tables: map[string]permission.TableRules{
		"customers": {Tenant: permission.TenancyDecl{Kind: permission.Direct, Column: "tenant_id"}},
		"plans":     {Tenant: permission.TenancyDecl{Kind: permission.Global}},
	}}
}

// TestSynthesizeGeneratesIffPKAndPermission checks P5: get/update/delete
// are generated for table T iff T has a non-empty primary key AND the
// role grants that operation.
func TestSynthesizeGeneratesIffPKAndPermission(t *testing.T) {
	role := &permission.Role{Name: "support_agent", Tables: map[string]permission.TablePermissions{
		"customers": {
			Readable:  permission.ReadableConfig{Columns: []string{"id", "email"}},
			Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{"email": {}}},
		},
		"plans": {
			// plans has no primary key in the schema: readable is set but
			// get/update/delete must NOT be generated regardless of grants.
			Readable:  permission.ReadableConfig{All: true},
			Updatable: permission.UpdatableColumns{All: true},
			Deletable: permission.DeletablePermission{Allowed: true},
		},
	}}
	m, err := permission.NewModel(role, sampleRules(), sampleSchema())
	require.NoError(t, err)

	tools := Synthesize(role, m, sampleSchema())
	names := map[string]bool{}
	for _, td := range tools {
		names[td.Name] = true
	}

	assert.True(t, names["getCustomer"])
	assert.True(t, names["listCustomers"])
	assert.True(t, names["updateCustomer"])
	assert.False(t, names["deleteCustomer"]) // not granted

	assert.True(t, names["listPlans"]) // no PK needed for list
	assert.False(t, names["getPlan"])  // no PK
	assert.False(t, names["updatePlan"])
	assert.False(t, names["deletePlan"])
}

func TestBuildCreateApprovalAnnotations(t *testing.T) {
	role := &permission.Role{Name: "billing_admin", Tables: map[string]permission.TablePermissions{
		"customers": {
			Creatable: permission.CreatableColumns{Columns: map[string]permission.CreatableColumnConstraints{
				"email": {Required: true},
				"tenant_id": {RequiresApproval: true},
			}},
		},
	}}
	m, err := permission.NewModel(role, sampleRules(), sampleSchema())
	require.NoError(t, err)
	tools := Synthesize(role, m, sampleSchema())

	var create *ToolDescriptor
	for i := range tools {
		if tools[i].Name == "createCustomer" {
			create = &tools[i]
		}
	}
	require.NotNil(t, create)
	assert.True(t, create.RequiresApproval)
	assert.Equal(t, []string{"tenant_id"}, create.ApprovalFields)
}
