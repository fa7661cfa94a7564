package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Placeholders take the form {{stepN.column}} for the first usable value of a
// column produced by step N, or {{stepN.column[*]}} for every usable value as
// a comma-separated list.
var rePlaceholder = regexp.MustCompile(`\{\{\s*step(\d+)\.([A-Za-z_][A-Za-z0-9_]*)(\[\*\])?\s*\}\}`)

type placeholder struct {
	step   int
	column string
	all    bool
	start  int
	end    int
}

func findPlaceholders(sql string) []placeholder {
	matches := rePlaceholder.FindAllStringSubmatchIndex(sql, -1)
	out := make([]placeholder, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(sql[m[2]:m[3]])
		if err != nil {
			n = -1
		}
		out = append(out, placeholder{
			step:   n,
			column: sql[m[4]:m[5]],
			all:    m[6] >= 0,
			start:  m[0],
			end:    m[1],
		})
	}
	return out
}

// HasPlaceholders reports whether sql references earlier step outputs.
func HasPlaceholders(sql string) bool {
	return rePlaceholder.MatchString(sql)
}

// Usable reports whether an executed dependency produced at least one usable
// row: a returned row for reads, an affected row for writes.
func Usable(res *domain.ExecutionResult) bool {
	if res == nil {
		return false
	}
	if res.Write {
		return res.RowsAffected > 0 || len(res.Rows) > 0
	}
	return len(res.Rows) > 0
}

// Bind substitutes placeholders in step.SQL with literals rendered by d from
// the results of earlier steps. When a referenced step has no usable value the
// returned skip reason is non-empty and the step must not run.
func Bind(step *domain.Step, results map[int]*domain.ExecutionResult, d domain.Dialect) (sql string, skipReason string) {
	refs := findPlaceholders(step.SQL)
	if len(refs) == 0 {
		return step.SQL, ""
	}

	var b strings.Builder
	last := 0
	for _, ref := range refs {
		res := results[ref.step]
		if res == nil {
			return "", fmt.Sprintf("dependency step %d has no result", ref.step)
		}
		col := columnIndex(res.Columns, ref.column)
		if col < 0 {
			return "", fmt.Sprintf("dependency step %d returned no column %q", ref.step, ref.column)
		}

		var values []string
		for _, row := range res.Rows {
			if col >= len(row) || row[col] == nil {
				continue
			}
			values = append(values, d.Literal(row[col]))
			if !ref.all {
				break
			}
		}
		if len(values) == 0 {
			return "", fmt.Sprintf("dependency step %d produced no usable value for %q", ref.step, ref.column)
		}

		b.WriteString(step.SQL[last:ref.start])
		b.WriteString(strings.Join(values, ", "))
		last = ref.end
	}
	b.WriteString(step.SQL[last:])
	return b.String(), ""
}

func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}
