// Package toolsynth implements C3: given a role's permissions and the
// database schema, it produces the catalog of MCP tool descriptors that
// role is entitled to — name, JSON-Schema, and capability annotations.
package toolsynth

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
)

// Operation is one of the five generated tool kinds.
type Operation string

const (
	OpGet    Operation = "get"
	OpList   Operation = "list"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// ToolDescriptor is one synthesized tool.
type ToolDescriptor struct {
	Name              string
	Description       string
	Table             string
	Operation         Operation
	InputSchema       json.RawMessage
	ReadOnly          bool
	DryRunSupported   bool
	RequiresApproval  bool
	ApprovalFields    []string
}

func readableNonEmpty(r permission.ReadableConfig) bool {
	return r.All || len(r.Columns) > 0
}

func creatableNonEmpty(c permission.CreatableColumns) bool {
	return c.All || len(c.Columns) > 0
}

func updatableNonEmpty(u permission.UpdatableColumns) bool {
	return u.All || len(u.Columns) > 0
}

// Synthesize produces the sorted list of tool descriptors role is
// entitled to against sch, per the generation table in the component
// contract (readable+PK -> get, readable -> list, creatable -> create,
// updatable+PK -> update, deletable+PK -> delete).
func Synthesize(role *permission.Role, model *permission.Model, sch *schema.Schema) []ToolDescriptor {
	tables := make([]string, 0, len(role.Tables))
	for t := range role.Tables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var out []ToolDescriptor
	for _, table := range tables {
		tp, ok := model.Resolve(table)
		if !ok {
			continue
		}
		t, ok := sch.Table(table)
		if !ok {
			continue
		}
		hasPK := t.HasPrimaryKey()

		if readableNonEmpty(tp.Readable) && hasPK {
			out = append(out, buildGet(table, t, tp))
		}
		if readableNonEmpty(tp.Readable) {
			out = append(out, buildList(table, t, tp, model))
		}
		if creatableNonEmpty(tp.Creatable) {
			out = append(out, buildCreate(table, t, tp, model))
		}
		if updatableNonEmpty(tp.Updatable) && hasPK {
			out = append(out, buildUpdate(table, t, tp))
		}
		if tp.Deletable.Allowed && hasPK {
			out = append(out, buildDelete(table, t, tp))
		}
	}
	return out
}

func pkProperties(t *schema.Table) (map[string]any, []string) {
	props := map[string]any{}
	var required []string
	for _, pk := range t.PrimaryKey {
		col, _ := t.Column(pk)
		props[pk] = map[string]any{"type": schema.JSONSchemaType(col.Type)}
		required = append(required, pk)
	}
	return props, required
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("toolsynth: schema must always marshal: %v", err))
	}
	return b
}

func buildGet(table string, t *schema.Table, tp permission.TablePermissions) ToolDescriptor {
	props, required := pkProperties(t)
	name := "get" + entityName(table)
	return ToolDescriptor{
		Name:        name,
		Description: fmt.Sprintf("Get a single %s by primary key.", entityName(table)),
		Table:       table,
		Operation:   OpGet,
		ReadOnly:    true,
		InputSchema: mustMarshal(map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		}),
	}
}

func buildList(table string, t *schema.Table, tp permission.TablePermissions, model *permission.Model) ToolDescriptor {
	props := map[string]any{
		"limit":  map[string]any{"type": "integer", "maximum": model.MaxPerPage(table)},
		"offset": map[string]any{"type": "integer"},
	}
	for _, col := range model.ReadableColumns(table, tp.Readable) {
		c, ok := t.Column(col)
		if !ok || !schema.IsScalarType(c.Type) {
			continue
		}
		props[col] = map[string]any{"type": schema.JSONSchemaType(c.Type)}
	}
	name := "list" + entityNamePlural(table)
	return ToolDescriptor{
		Name:        name,
		Description: fmt.Sprintf("List %s with optional filters and pagination.", entityNamePlural(table)),
		Table:       table,
		Operation:   OpList,
		ReadOnly:    true,
		InputSchema: mustMarshal(map[string]any{
			"type":       "object",
			"properties": props,
		}),
	}
}

func buildCreate(table string, t *schema.Table, tp permission.TablePermissions, model *permission.Model) ToolDescriptor {
	props := map[string]any{}
	var required []string
	var approvalFields []string

	columns := tp.Creatable.Columns
	if tp.Creatable.All {
		columns = map[string]permission.CreatableColumnConstraints{}
		for _, c := range t.Columns {
			columns[c.Name] = permission.CreatableColumnConstraints{}
		}
	}

	for col, constraint := range columns {
		c, ok := t.Column(col)
		prop := map[string]any{"type": "string"}
		if ok {
			prop["type"] = schema.JSONSchemaType(c.Type)
		}
		if len(constraint.RestrictTo) > 0 {
			prop["enum"] = constraint.RestrictTo
		}
		if constraint.Default != nil {
			prop["default"] = *constraint.Default
		}
		if constraint.Guidance != "" {
			prop["description"] = constraint.Guidance
		}
		props[col] = prop

		isRequired := constraint.Required
		if ok && !c.Nullable && !c.HasDefault && constraint.Default == nil {
			isRequired = true
		}
		if isRequired {
			required = append(required, col)
		}
		if constraint.RequiresApproval {
			approvalFields = append(approvalFields, col)
		}
	}
	sort.Strings(required)
	sort.Strings(approvalFields)

	name := "create" + entityName(table)
	return ToolDescriptor{
		Name:             name,
		Description:      fmt.Sprintf("Create a new %s.", entityName(table)),
		Table:            table,
		Operation:        OpCreate,
		DryRunSupported:  true,
		RequiresApproval: len(approvalFields) > 0,
		ApprovalFields:   approvalFields,
		InputSchema: mustMarshal(map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		}),
	}
}

func buildUpdate(table string, t *schema.Table, tp permission.TablePermissions) ToolDescriptor {
	props, required := pkProperties(t)
	var approvalFields []string

	columns := tp.Updatable.Columns
	if tp.Updatable.All {
		columns = map[string]permission.UpdatableColumnConstraints{}
		for _, c := range t.Columns {
			columns[c.Name] = permission.UpdatableColumnConstraints{}
		}
	}

	for col, constraint := range columns {
		c, ok := t.Column(col)
		prop := map[string]any{"type": "string"}
		if ok {
			prop["type"] = schema.JSONSchemaType(c.Type)
		}
		if constraint.Guidance != "" {
			prop["description"] = constraint.Guidance
		}
		if enumVals := simpleNewEnum(constraint.OnlyWhen, col); len(enumVals) > 0 {
			prop["enum"] = enumVals
		}
		props[col] = prop
		if constraint.RequiresApproval {
			approvalFields = append(approvalFields, col)
		}
	}
	sort.Strings(approvalFields)

	name := "update" + entityName(table)
	return ToolDescriptor{
		Name:             name,
		Description:      fmt.Sprintf("Update an existing %s.", entityName(table)),
		Table:            table,
		Operation:        OpUpdate,
		DryRunSupported:  true,
		RequiresApproval: len(approvalFields) > 0,
		ApprovalFields:   approvalFields,
		InputSchema: mustMarshal(map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		}),
	}
}

// simpleNewEnum surfaces a simple "new.<col>: [literals]" only_when form
// as a JSON-Schema enum. Complex predicates (column references, ORed
// alternatives with differing value sets, comparators) are left to
// validation time only, per the component contract.
func simpleNewEnum(ow permission.OnlyWhen, col string) []any {
	if len(ow) != 1 {
		return nil
	}
	cond, ok := ow[0]["new."+col]
	if !ok || !cond.IsList {
		return nil
	}
	return cond.ListVals
}

func buildDelete(table string, t *schema.Table, tp permission.TablePermissions) ToolDescriptor {
	props, required := pkProperties(t)
	name := "delete" + entityName(table)
	return ToolDescriptor{
		Name:             name,
		Description:      fmt.Sprintf("Delete a %s.", entityName(table)),
		Table:            table,
		Operation:        OpDelete,
		DryRunSupported:  true,
		RequiresApproval: tp.Deletable.RequiresApproval,
		ApprovalFields:   nil,
		InputSchema: mustMarshal(map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		}),
	}
}
