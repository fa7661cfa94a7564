package domain

import "strings"

// Column describes one table column.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Nullable   bool    `json:"nullable"`
	Default    *string `json:"default,omitempty"`
	PrimaryKey bool    `json:"primary_key,omitempty"`
}

// ForeignKey describes a reference from a column to another table.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
	OnDelete  string `json:"on_delete,omitempty"`
}

// Table is the schema context of one table.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	SampleRows  [][]any      `json:"sample_rows,omitempty"`
}

// PrimaryKey returns the primary key column names in declaration order.
func (t *Table) PrimaryKey() []string {
	var out []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			out = append(out, c.Name)
		}
	}
	return out
}

// FindTable returns the table with the given name, case-insensitively.
func FindTable(tables []Table, name string) (*Table, bool) {
	for i := range tables {
		if strings.EqualFold(tables[i].Name, name) {
			return &tables[i], true
		}
	}
	return nil, false
}
