package sqlguard

import (
	"regexp"
	"strings"
)

type blockedPattern struct {
	re          *regexp.Regexp
	description string
	strictOnly  bool
}

var blockedPatterns = []blockedPattern{
	{regexp.MustCompile(`\b(EXECUTE|EXEC|XP_CMDSHELL|SP_EXECUTESQL)\s*\(`), "system command", false},
	{regexp.MustCompile(`\b(PG_READ_FILE|PG_LS_DIR|PG_SLEEP|LO_IMPORT|LO_EXPORT)\s*\(`), "PostgreSQL dangerous function", false},
	{regexp.MustCompile(`\b(LOAD_FILE|INTO\s+OUTFILE|INTO\s+DUMPFILE)\b`), "MySQL dangerous function", false},

	{regexp.MustCompile(`--`), "SQL comment", true},
	{regexp.MustCompile(`(?s)/\*.*?\*/`), "multi-line comment", true},
	{regexp.MustCompile(`\bUNION\s+(ALL\s+)?SELECT\b`), "UNION injection", true},
	{regexp.MustCompile(`\bINFORMATION_SCHEMA\b`), "information schema access", true},
	{regexp.MustCompile(`\b0X[0-9A-F]+\b`), "hex encoding", true},
	{regexp.MustCompile(`\\U[0-9A-F]{4}`), "unicode encoding", true},
}

// Sanitize returns a description of every blocked pattern found in sql.
// Lenient mode checks system commands, dangerous file and sleep functions and
// stacked statements; strict mode also rejects comments, UNION SELECT,
// information_schema access and encoded literals.
func Sanitize(sql string, strict bool) []string {
	normalized := strings.ToUpper(strings.Join(strings.Fields(sql), " "))
	var violations []string
	for _, p := range blockedPatterns {
		if p.strictOnly && !strict {
			continue
		}
		if p.re.MatchString(normalized) {
			violations = append(violations, p.description)
		}
	}
	if HasMultipleStatements(sql) {
		violations = append(violations, "multiple statements")
	}
	return violations
}

// HasMultipleStatements reports whether anything but a trailing semicolon
// follows the first statement terminator. Semicolons inside literals and
// comments are ignored.
func HasMultipleStatements(sql string) bool {
	seenTerminator := false
	for _, tok := range tokenize(sql) {
		if tok.typ == tokSemicolon {
			seenTerminator = true
			continue
		}
		if seenTerminator {
			return true
		}
	}
	return false
}

// SplitStatements splits sql on top-level semicolons and drops empty pieces.
func SplitStatements(sql string) []string {
	var out []string
	start := 0
	for _, tok := range tokenize(sql) {
		if tok.typ != tokSemicolon {
			continue
		}
		if s := strings.TrimSpace(sql[start:tok.pos]); len(tokenize(s)) > 0 {
			out = append(out, s)
		}
		start = tok.end
	}
	if s := strings.TrimSpace(sql[start:]); len(tokenize(s)) > 0 {
		out = append(out, s)
	}
	return out
}

// TrimTerminator removes trailing semicolons and whitespace.
func TrimTerminator(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}
