// Package permission is the in-memory representation of role
// permissions and tenancy rules (C2). Most of the interesting types
// here are tagged unions authored in role/rules documents as either a
// bare "*", a list, or a mapping — they are modeled as sum types with
// custom JSON unmarshaling rather than forcing every author to pick a
// discriminant tag.
package permission

import (
	"encoding/json"
	"fmt"
)

// ColumnList is "*" (all columns) or an explicit list.
type ColumnList struct {
	All     bool
	Columns []string
}

func (c *ColumnList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("column list: bare string must be \"*\", got %q", s)
		}
		c.All = true
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("column list: expected \"*\" or an array: %w", err)
	}
	c.Columns = list
	return nil
}

// ReadableConfig is "*", a list of columns, or {columns, max_per_page}.
type ReadableConfig struct {
	All        bool
	Columns    []string
	MaxPerPage int
}

func (r *ReadableConfig) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("readable: bare string must be \"*\", got %q", s)
		}
		r.All = true
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		r.Columns = list
		return nil
	}
	var obj struct {
		Columns    []string `json:"columns"`
		MaxPerPage int      `json:"max_per_page"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("readable: expected \"*\", an array, or an object: %w", err)
	}
	r.Columns = obj.Columns
	r.MaxPerPage = obj.MaxPerPage
	return nil
}

// ForeignKeyVerify names the caller-supplied columns used to verify a
// cross-tenant foreign key reference at create time.
type ForeignKeyVerify struct {
	VerifyWith []string `json:"verify_with"`
}

// CreatableColumnConstraints gates a single creatable column.
type CreatableColumnConstraints struct {
	Required         bool              `json:"required"`
	Default          *string           `json:"default"`
	RestrictTo       []string          `json:"restrict_to"`
	RequiresApproval bool              `json:"requires_approval"`
	Guidance         string            `json:"guidance"`
	ForeignKey       *ForeignKeyVerify `json:"foreign_key"`
}

// CreatableColumns is "*" or a mapping column -> constraints.
type CreatableColumns struct {
	All     bool
	Columns map[string]CreatableColumnConstraints
}

func (c *CreatableColumns) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("creatable: bare string must be \"*\", got %q", s)
		}
		c.All = true
		return nil
	}
	var m map[string]CreatableColumnConstraints
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("creatable: expected \"*\" or an object: %w", err)
	}
	c.Columns = m
	return nil
}

// UpdatableColumnConstraints gates a single updatable column.
type UpdatableColumnConstraints struct {
	OnlyWhen         OnlyWhen `json:"only_when"`
	RequiresApproval bool     `json:"requires_approval"`
	Guidance         string   `json:"guidance"`
}

// UpdatableColumns is "*" or a mapping column -> constraints.
type UpdatableColumns struct {
	All     bool
	Columns map[string]UpdatableColumnConstraints
}

func (u *UpdatableColumns) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "*" {
			return fmt.Errorf("updatable: bare string must be \"*\", got %q", s)
		}
		u.All = true
		return nil
	}
	var m map[string]UpdatableColumnConstraints
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("updatable: expected \"*\" or an object: %w", err)
	}
	u.Columns = m
	return nil
}

// DeletablePermission is a bool or {requires_approval, soft_delete}.
type DeletablePermission struct {
	Allowed          bool
	RequiresApproval bool
	SoftDeleteColumn string // empty means hard delete
}

func (d *DeletablePermission) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		d.Allowed = b
		return nil
	}
	var obj struct {
		RequiresApproval bool   `json:"requires_approval"`
		SoftDelete       string `json:"soft_delete"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("deletable: expected a bool or an object: %w", err)
	}
	d.Allowed = true
	d.RequiresApproval = obj.RequiresApproval
	d.SoftDeleteColumn = obj.SoftDelete
	return nil
}

// ColumnCondition is one entry in an only_when map: a literal (equality),
// a list (membership), or a record of named comparators.
type ColumnCondition struct {
	Literal            any
	IsLiteral          bool
	ListVals           []any
	IsList             bool
	Equals             *any
	NotEquals          *any
	GreaterThan        any
	GreaterThanOrEqual any
	LowerThan          any
	LowerThanOrEqual   any
	In                 []any
	NotIn              []any
	NotNull            bool
	HasNotNull         bool
	IsNull             bool
	HasIsNull          bool
	StartsWith         any
}

func (c *ColumnCondition) UnmarshalJSON(data []byte) error {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	switch v := generic.(type) {
	case []any:
		c.IsList = true
		c.ListVals = v
		return nil
	case map[string]any:
		if val, ok := v["equals"]; ok {
			c.Equals = &val
		}
		if val, ok := v["not_equals"]; ok {
			c.NotEquals = &val
		}
		if val, ok := v["greater_than"]; ok {
			c.GreaterThan = val
		}
		if val, ok := v["greater_than_or_equal"]; ok {
			c.GreaterThanOrEqual = val
		}
		if val, ok := v["lower_than"]; ok {
			c.LowerThan = val
		}
		if val, ok := v["lower_than_or_equal"]; ok {
			c.LowerThanOrEqual = val
		}
		if val, ok := v["in"]; ok {
			if list, ok := val.([]any); ok {
				c.In = list
			}
		}
		if val, ok := v["not_in"]; ok {
			if list, ok := val.([]any); ok {
				c.NotIn = list
			}
		}
		if val, ok := v["not_null"]; ok {
			c.HasNotNull = true
			if b, ok := val.(bool); ok {
				c.NotNull = b
			}
		}
		if val, ok := v["is_null"]; ok {
			c.HasIsNull = true
			if b, ok := val.(bool); ok {
				c.IsNull = b
			}
		}
		if val, ok := v["starts_with"]; ok {
			c.StartsWith = val
		}
		return nil
	default:
		c.IsLiteral = true
		c.Literal = v
		return nil
	}
}

// ConditionMap is one AND-group: column key ("old.x"/"new.x") -> condition.
type ConditionMap map[string]ColumnCondition

// OnlyWhen is OR over a list of ConditionMap; a bare object is sugar for
// a single-element list.
type OnlyWhen []ConditionMap

func (o *OnlyWhen) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = nil
		return nil
	}
	var list []ConditionMap
	if err := json.Unmarshal(data, &list); err == nil {
		*o = list
		return nil
	}
	var single ConditionMap
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("only_when: expected an object or an array of objects: %w", err)
	}
	*o = OnlyWhen{single}
	return nil
}

// TablePermissions is the four independent permission facets for one table.
type TablePermissions struct {
	Readable  ReadableConfig      `json:"readable"`
	Creatable CreatableColumns    `json:"creatable"`
	Updatable UpdatableColumns    `json:"updatable"`
	Deletable DeletablePermission `json:"deletable"`
}

// Role is a name, description, and per-table permissions.
type Role struct {
	Name        string                      `json:"name"`
	Description string                      `json:"description"`
	Tables      map[string]TablePermissions `json:"tables"`
}

// TenancyDecl is the authored form of a table's tenancy rule: a string
// (Direct column name, or the literal "global"), or {via, references}
// (Inherited).
type TenancyDecl struct {
	Kind       TenancyKind
	Column     string
	Via        string
	References string
}

func (t *TenancyDecl) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "global" {
			t.Kind = Global
			return nil
		}
		t.Kind = Direct
		t.Column = s
		return nil
	}
	var obj struct {
		Via        string `json:"via"`
		References string `json:"references"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("tenant: expected a string or {via, references}: %w", err)
	}
	t.Kind = Inherited
	t.Via = obj.Via
	t.References = obj.References
	return nil
}

// ColumnRule is a per-column value-shape rule from the rules document:
// a regex the value's string form must match, and/or a literal
// whitelist, checked against the column's declared type in the schema
// (spec: "against literal types declared in types.yaml").
type ColumnRule struct {
	Pattern       string   `json:"pattern,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
}

// TableRules holds the non-permission, tenancy-and-pattern rules for a table.
type TableRules struct {
	Tenant  TenancyDecl           `json:"tenant"`
	Columns map[string]ColumnRule `json:"columns,omitempty"`
}

// Rules is the authored tenancy-and-pattern document.
type Rules struct {
	Tables map[string]TableRules `json:"tables"`
}
