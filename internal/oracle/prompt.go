package oracle

import (
	"fmt"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/schema"
)

const readOnlyRules = `Rules:
1. Generate ONLY SELECT queries; this request is read-only.
2. Use JOINs when the answer spans several tables.
3. Add a LIMIT clause of at most %d rows.
4. Use table and column names exactly as shown in the schema.
5. Handle NULL values explicitly.`

const writeRules = `First identify the operation the user asks for:
- "add", "create", "insert", "new", "register" -> INSERT INTO
- "update", "change", "modify", "set", "edit" -> UPDATE ... SET
- "delete", "remove" (a row, never a table) -> DELETE FROM
- "show", "get", "find", "list" -> SELECT

Rules:
1. Never generate DELETE when the user says "add" or "create".
2. UPDATE and DELETE must carry a WHERE clause naming the target rows.
3. Never emit CREATE, DROP or TRUNCATE.
4. Check the sample rows for the exact stored values (for example
   "alice brown" may be stored as 'alice_brown').
5. Do not assign generated or computed columns.
6. Use table and column names exactly as shown in the schema.`

const multiStepFormat = `If the request needs several statements, a later statement may use a
value produced by an earlier one with the placeholder {{stepN.column}} (first
row) or {{stepN.column[*]}} (every row, comma separated) and must list N in
depends_on.

Answer with JSON only, in exactly this shape:
{"steps": [{"sql": "...", "explanation": "...", "depends_on": []}]}

A single statement may instead be answered as:
` + "```sql\n<statement>\n```" + `
Explanation: <one or two sentences>`

// buildPrompt renders the generation prompt for one request.
func buildPrompt(req domain.OracleRequest, maxLimit int) string {
	var b strings.Builder
	b.WriteString("You are an expert SQL generator. Convert the request into SQL.\n\n")
	if req.Dialect != "" {
		fmt.Fprintf(&b, "Database type: %s\n\n", dialectLabel(req.Dialect))
	}
	if len(req.Schema) > 0 {
		b.WriteString("Schema with sample rows:\n")
		b.WriteString(schema.Summary(req.Schema))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User request: %s\n\n", req.Question)
	if req.Mode == domain.ModeWrite {
		b.WriteString(writeRules)
	} else {
		fmt.Fprintf(&b, readOnlyRules, maxLimit)
	}
	b.WriteString("\n\n")
	b.WriteString(multiStepFormat)
	b.WriteString("\n")
	return b.String()
}

func dialectLabel(d string) string {
	switch domain.DatabaseType(d) {
	case domain.DatabasePostgres:
		return "PostgreSQL"
	case domain.DatabaseMySQL:
		return "MySQL"
	case domain.DatabaseSQLite:
		return "SQLite"
	case domain.DatabaseDuckDB:
		return "DuckDB"
	default:
		return d
	}
}
