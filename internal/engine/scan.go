package engine

import (
	"database/sql"
)

// scanRows reads at most limit rows (all when limit <= 0). The second return
// reports whether more rows were available. NULL stays nil; byte slices are
// converted to strings so results serialize as text.
func scanRows(rows *sql.Rows, limit int) ([]string, [][]any, bool, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, false, err
	}

	out := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if limit > 0 && len(out) == limit {
			truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, false, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, false, err
	}
	return cols, out, truncated, nil
}
