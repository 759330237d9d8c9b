package validate

import (
	"testing"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
	"github.com/cori-do/cori/internal/toolsynth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticketsSchema() *schema.Schema {
	return &schema.Schema{Tables: map[string]*schema.Table{
		"tickets": {
			Name:       "tickets",
			PrimaryKey: []string{"id"},
			Columns: []schema.Column{
				{Name: "id", Type: "integer"},
				{Name: "tenant_id", Type: "string"},
				{Name: "status", Type: "string"},
				{Name: "priority", Type: "string"},
				{Name: "notes", Type: "string"},
			},
		},
	}}
}

func ticketsRules() *permission.Rules {
	return &permission.Rules{Tables: map[string]permission.TableRules{
		"tickets": {Tenant: permission.TenancyDecl{Kind: permission.Direct, Column: "tenant_id"}},
	}}
}

func newTicketValidator(t *testing.T, tp permission.TablePermissions) *Validator {
	t.Helper()
	role := &permission.Role{Name: "agent", Tables: map[string]permission.TablePermissions{"tickets": tp}}
	m, err := permission.NewModel(role, ticketsRules(), ticketsSchema())
	require.NoError(t, err)
	return New("agent", m, ticketsSchema())
}

// scenario 2: ticket status lifecycle
func TestOnlyWhenTicketLifecycle(t *testing.T) {
	statusOnlyWhen := permission.OnlyWhen{
		{"old.status": permission.ColumnCondition{IsLiteral: true, Literal: "open"}, "new.status": permission.ColumnCondition{IsList: true, ListVals: []any{"in_progress"}}},
		{"old.status": permission.ColumnCondition{IsLiteral: true, Literal: "in_progress"}, "new.status": permission.ColumnCondition{IsList: true, ListVals: []any{"resolved", "open"}}},
	}
	tp := permission.TablePermissions{
		Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{
			"status": {OnlyWhen: statusOnlyWhen},
		}},
	}
	v := newTicketValidator(t, tp)

	// old.status=open -> new.status=resolved should violate (resolved is
	// only allowed from in_progress)
	err := v.Validate(Request{
		Operation: toolsynth.OpUpdate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments:  map[string]any{"id": float64(1), "status": "resolved"},
		CurrentRow: map[string]any{"status": "open"},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, OnlyWhenViolation, verr.Kind)

	// old.status=in_progress -> new.status=resolved is fine
	err = v.Validate(Request{
		Operation: toolsynth.OpUpdate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments:  map[string]any{"id": float64(1), "status": "resolved"},
		CurrentRow: map[string]any{"status": "in_progress"},
	})
	require.NoError(t, err)
}

// scenario 4: append-only notes via starts_with
func TestOnlyWhenAppendOnlyNotes(t *testing.T) {
	tp := permission.TablePermissions{
		Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{
			"notes": {OnlyWhen: permission.OnlyWhen{
				{"new.notes": permission.ColumnCondition{StartsWith: "old.notes"}},
			}},
		}},
	}
	v := newTicketValidator(t, tp)

	err := v.Validate(Request{
		Operation: toolsynth.OpUpdate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments:  map[string]any{"id": float64(1), "notes": "A. B."},
		CurrentRow: map[string]any{"notes": "A."},
	})
	require.NoError(t, err)

	err = v.Validate(Request{
		Operation: toolsynth.OpUpdate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments:  map[string]any{"id": float64(1), "notes": "C."},
		CurrentRow: map[string]any{"notes": "A."},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, OnlyWhenViolation, verr.Kind)
}

// boundary: only_when with empty list rejects
func TestOnlyWhenEmptyListRejects(t *testing.T) {
	tp := permission.TablePermissions{
		Updatable: permission.UpdatableColumns{Columns: map[string]permission.UpdatableColumnConstraints{
			"status": {OnlyWhen: permission.OnlyWhen{}},
		}},
	}
	v := newTicketValidator(t, tp)
	err := v.Validate(Request{
		Operation: toolsynth.OpUpdate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments:  map[string]any{"id": float64(1), "status": "resolved"},
		CurrentRow: map[string]any{"status": "open"},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, OnlyWhenViolation, verr.Kind)
}

func TestMissingTenantRejected(t *testing.T) {
	tp := permission.TablePermissions{Readable: permission.ReadableConfig{All: true}}
	v := newTicketValidator(t, tp)
	err := v.Validate(Request{
		Operation: toolsynth.OpGet, Table: "tickets", RoleName: "agent", TenantID: "",
		Arguments: map[string]any{"id": float64(1)},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MissingTenant, verr.Kind)
}

func TestCreateRequiredFieldMissing(t *testing.T) {
	tp := permission.TablePermissions{
		Creatable: permission.CreatableColumns{Columns: map[string]permission.CreatableColumnConstraints{
			"status": {Required: true},
		}},
	}
	v := newTicketValidator(t, tp)
	err := v.Validate(Request{
		Operation: toolsynth.OpCreate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments: map[string]any{},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, RequiredFieldMissing, verr.Kind)
}

func TestCreateValueNotInRestrictTo(t *testing.T) {
	tp := permission.TablePermissions{
		Creatable: permission.CreatableColumns{Columns: map[string]permission.CreatableColumnConstraints{
			"priority": {RestrictTo: []string{"low", "high"}},
		}},
	}
	v := newTicketValidator(t, tp)
	err := v.Validate(Request{
		Operation: toolsynth.OpCreate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments: map[string]any{"priority": "critical"},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ValueNotAllowed, verr.Kind)
}

func rulesWithColumns(cols map[string]permission.ColumnRule) *permission.Rules {
	return &permission.Rules{Tables: map[string]permission.TableRules{
		"tickets": {
			Tenant:  permission.TenancyDecl{Kind: permission.Direct, Column: "tenant_id"},
			Columns: cols,
		},
	}}
}

func newTicketValidatorWithRules(t *testing.T, tp permission.TablePermissions, rules *permission.Rules) *Validator {
	t.Helper()
	role := &permission.Role{Name: "agent", Tables: map[string]permission.TablePermissions{"tickets": tp}}
	m, err := permission.NewModel(role, rules, ticketsSchema())
	require.NoError(t, err)
	return New("agent", m, ticketsSchema())
}

func TestColumnRulesAllowedValues(t *testing.T) {
	tp := permission.TablePermissions{Creatable: permission.CreatableColumns{All: true}}
	rules := rulesWithColumns(map[string]permission.ColumnRule{
		"status": {AllowedValues: []string{"open", "closed"}},
	})
	v := newTicketValidatorWithRules(t, tp, rules)

	err := v.Validate(Request{
		Operation: toolsynth.OpCreate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments: map[string]any{"status": "bogus"},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, ValueNotAllowed, verr.Kind)

	err = v.Validate(Request{
		Operation: toolsynth.OpCreate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments: map[string]any{"status": "open"},
	})
	require.NoError(t, err)
}

func TestColumnRulesPattern(t *testing.T) {
	tp := permission.TablePermissions{Updatable: permission.UpdatableColumns{All: true}}
	rules := rulesWithColumns(map[string]permission.ColumnRule{
		"notes": {Pattern: `^[A-Z][a-z]*\.$`},
	})
	v := newTicketValidatorWithRules(t, tp, rules)

	err := v.Validate(Request{
		Operation: toolsynth.OpUpdate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments: map[string]any{"id": float64(1), "notes": "not capitalized"},
	})
	var verr *Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PatternViolation, verr.Kind)

	err = v.Validate(Request{
		Operation: toolsynth.OpUpdate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments: map[string]any{"id": float64(1), "notes": "Ok."},
	})
	require.NoError(t, err)
}

func TestColumnRulesSkipTenantAndPK(t *testing.T) {
	tp := permission.TablePermissions{Creatable: permission.CreatableColumns{All: true}}
	rules := rulesWithColumns(map[string]permission.ColumnRule{
		"tenant_id": {Pattern: `^never-matches$`},
		"id":        {Pattern: `^never-matches$`},
	})
	v := newTicketValidatorWithRules(t, tp, rules)

	err := v.Validate(Request{
		Operation: toolsynth.OpCreate, Table: "tickets", RoleName: "agent", TenantID: "acme",
		Arguments: map[string]any{"id": float64(1), "tenant_id": "acme", "status": "open"},
	})
	require.NoError(t, err)
}
