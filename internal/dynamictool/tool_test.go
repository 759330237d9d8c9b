package dynamictool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cori-do/cori/internal/approval"
	"github.com/cori-do/cori/internal/audit"
	"github.com/cori-do/cori/internal/mcp"
	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/cori-do/cori/internal/sqlgen"
	"github.com/cori-do/cori/internal/token"
	"github.com/cori-do/cori/internal/toolsynth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	rows [][]map[string]any
	n    int
}

func (f *fakeExecutor) QueryRows(ctx context.Context, sqlText string, args ...any) ([]map[string]any, error) {
	idx := f.n
	f.n++
	if idx < len(f.rows) {
		return f.rows[idx], nil
	}
	return nil, nil
}

type memApprovalStore struct {
	created []*approval.Request
}

func (m *memApprovalStore) Create(r *approval.Request) error {
	m.created = append(m.created, r)
	return nil
}
func (m *memApprovalStore) Get(id string) (*approval.Request, error) {
	for _, r := range m.created {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, &approval.Error{Kind: approval.NotFound, ID: id}
}
func (m *memApprovalStore) AttachResult(id string, result json.RawMessage) error { return nil }
func (m *memApprovalStore) BindAudit(id, eventID, correlationID string) error    { return nil }

func ticketsSchema() *schema.Schema {
	return &schema.Schema{Tables: map[string]*schema.Table{
		"tickets": {
			Name: "tickets", PrimaryKey: []string{"id"},
			Columns: []schema.Column{
				{Name: "id", Type: "integer"}, {Name: "tenant_id", Type: "string"},
				{Name: "status", Type: "string"}, {Name: "priority", Type: "string"},
			},
		},
	}}
}

func ticketsRules() *permission.Rules {
	return &permission.Rules{Tables: map[string]permission.TableRules{
		"tickets": {Tenant: permission.TenancyDecl{Kind: permission.Direct, Column: "tenant_id"}},
	}}
}

func newTestTool(t *testing.T, tp permission.TablePermissions, op toolsynth.Operation, exec *fakeExecutor, store ApprovalStore) *Tool {
	t.Helper()
	role := &permission.Role{Name: "agent", Tables: map[string]permission.TablePermissions{"tickets": tp}}
	model, err := permission.NewModel(role, ticketsRules(), ticketsSchema())
	require.NoError(t, err)
	sch := ticketsSchema()
	emitter := sqlgen.New(model, sch, exec)
	deps := &Deps{
		RoleName:  "agent",
		Model:     model,
		Schema:    sch,
		Emitter:   emitter,
		Approvals: store,
		Audit:     audit.NopSink{},
	}
	desc := toolsynth.ToolDescriptor{Name: "tickets_" + string(op), Table: "tickets", Operation: op}
	return New(desc, deps)
}

func withClaims(role, tenant string) context.Context {
	return token.WithClaims(context.Background(), token.Claims{Role: role, Tenant: tenant, HasTenant: tenant != ""})
}

func TestExecuteRejectsCallWithoutVerifiedToken(t *testing.T) {
	tl := newTestTool(t, permission.TablePermissions{Readable: permission.ReadableConfig{All: true}}, toolsynth.OpGet, &fakeExecutor{}, &memApprovalStore{})
	res, err := tl.Execute(context.Background(), json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestExecuteGetReturnsRow(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{{{"id": int64(1), "status": "open"}}}}
	tl := newTestTool(t, permission.TablePermissions{Readable: permission.ReadableConfig{All: true}}, toolsynth.OpGet, exec, &memApprovalStore{})
	ctx := withClaims("agent", "acme")

	res, err := tl.Execute(ctx, json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	require.False(t, res.IsError)
	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &row))
	assert.Equal(t, "open", row["status"])
}

func TestExecuteUpdateWithApprovalFieldQueuesRequest(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1), "status": "open", "priority": "low"}}, // before-row fetch for approval snapshot
	}}
	store := &memApprovalStore{}
	tl := newTestTool(t, permission.TablePermissions{
		Readable: permission.ReadableConfig{All: true},
		Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{
			"priority": {RequiresApproval: true},
		}},
	}, toolsynth.OpUpdate, exec, store)
	ctx := withClaims("agent", "acme")

	res, err := tl.Execute(ctx, json.RawMessage(`{"id":1,"priority":"urgent"}`))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, store.created, 1)
	assert.Equal(t, approval.Pending, store.created[0].Status)
	assert.Equal(t, "tickets", store.created[0].TargetTable)
}

func TestExecuteUpdateDryRunSkipsMutation(t *testing.T) {
	exec := &fakeExecutor{}
	tl := newTestTool(t, permission.TablePermissions{
		Readable:  permission.ReadableConfig{All: true},
		Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{"status": {}}},
	}, toolsynth.OpUpdate, exec, &memApprovalStore{})
	ctx := mcp.WithDryRun(withClaims("agent", "acme"), true)

	res, err := tl.Execute(ctx, json.RawMessage(`{"id":1,"status":"closed"}`))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.True(t, res.IsDryRun)
	assert.Equal(t, 0, exec.n)
}

func TestExecuteDeleteRequiringApprovalQueuesRequest(t *testing.T) {
	exec := &fakeExecutor{rows: [][]map[string]any{
		{{"id": int64(1), "status": "open"}},
	}}
	store := &memApprovalStore{}
	tl := newTestTool(t, permission.TablePermissions{
		Readable:  permission.ReadableConfig{All: true},
		Deletable: permission.DeletablePermission{Allowed: true, RequiresApproval: true},
	}, toolsynth.OpDelete, exec, store)
	ctx := withClaims("agent", "acme")

	res, err := tl.Execute(ctx, json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, store.created, 1)
}
