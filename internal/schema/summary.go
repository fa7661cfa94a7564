package schema

import (
	"fmt"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Summary renders tables as compact text for an Oracle prompt:
//
//	Table users:
//	  - id INTEGER (PRIMARY KEY)
//	  - email TEXT NOT NULL
//	  Foreign keys: team_id -> teams.id
//	  Sample: [1 ada@example.com 3]
func Summary(tables []domain.Table) string {
	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Table %s:\n", t.Name)
		for _, c := range t.Columns {
			b.WriteString("  - " + c.Name)
			if c.Type != "" {
				b.WriteString(" " + c.Type)
			}
			if !c.Nullable && !c.PrimaryKey {
				b.WriteString(" NOT NULL")
			}
			if c.PrimaryKey {
				b.WriteString(" (PRIMARY KEY)")
			}
			b.WriteByte('\n')
		}
		if len(t.ForeignKeys) > 0 {
			refs := make([]string, len(t.ForeignKeys))
			for j, fk := range t.ForeignKeys {
				refs[j] = fmt.Sprintf("%s -> %s.%s", fk.Column, fk.RefTable, fk.RefColumn)
			}
			b.WriteString("  Foreign keys: " + strings.Join(refs, ", ") + "\n")
		}
		for _, row := range t.SampleRows {
			fmt.Fprintf(&b, "  Sample: %v\n", row)
		}
	}
	return b.String()
}
