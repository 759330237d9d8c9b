// Package schema models the relational schema document that the tool
// synthesizer and validator read. Live introspection against a database
// connection is out of scope; the document is produced externally and
// loaded here as JSON.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// Column describes a single table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	HasDefault bool `json:"has_default"`
	Default  string `json:"default,omitempty"`
}

// ForeignKey describes a foreign-key constraint on one or more columns.
type ForeignKey struct {
	Columns        []string `json:"columns"`
	ForeignTable   string   `json:"foreign_table"`
	ForeignColumns []string `json:"foreign_columns"`
	OnDelete       string   `json:"on_delete,omitempty"`
	OnUpdate       string   `json:"on_update,omitempty"`
}

// Table describes a single table: its columns, primary key, and FKs.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// HasPrimaryKey reports whether the table declares a non-empty PK.
func (t *Table) HasPrimaryKey() bool { return len(t.PrimaryKey) > 0 }

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ForeignKeyOn returns the FK constraint whose leading column is col, if any.
func (t *Table) ForeignKeyOn(col string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) > 0 && fk.Columns[0] == col {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// Schema is the set of tables known to the kernel, keyed by table name.
type Schema struct {
	Tables map[string]*Table `json:"tables"`
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// Load reads a schema document from path.
func Load(path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema document: %w", err)
	}
	var raw struct {
		Tables []*Table `json:"tables"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parsing schema document: %w", err)
	}
	s := &Schema{Tables: make(map[string]*Table, len(raw.Tables))}
	for _, t := range raw.Tables {
		s.Tables[t.Name] = t
	}
	return s, nil
}

// IsScalarType reports whether a schema type maps to a JSON-Schema scalar
// (string/number/integer/boolean) as opposed to an object/array, for use
// when deciding which columns are eligible as list filters.
func IsScalarType(t string) bool {
	switch t {
	case "json", "jsonb", "array":
		return false
	default:
		return true
	}
}

// JSONSchemaType maps a schema column type to a JSON-Schema "type" value.
func JSONSchemaType(t string) string {
	switch t {
	case "integer", "int", "int4", "int8", "bigint", "smallint", "serial", "bigserial":
		return "integer"
	case "numeric", "decimal", "real", "double precision", "float":
		return "number"
	case "boolean", "bool":
		return "boolean"
	default:
		return "string"
	}
}
