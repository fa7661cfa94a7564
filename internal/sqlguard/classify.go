// Package sqlguard inspects SQL text for destructive operations, blocked
// patterns and row-limit compliance.
//
// Detection is keyword based and works on the upper-cased statement text with
// whole-token matching. It deliberately does not parse SQL: a keyword inside
// a string literal still counts.
package sqlguard

import (
	"regexp"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

type dangerRule struct {
	op       domain.OperationKind
	severity domain.Severity
	match    func(upper string) bool
}

var (
	reDelete   = regexp.MustCompile(`\bDELETE\b`)
	reUpdate   = regexp.MustCompile(`\bUPDATE\b`)
	reSet      = regexp.MustCompile(`\bSET\b`)
	reDrop     = regexp.MustCompile(`\bDROP\s+(TABLE|DATABASE)\b`)
	reTruncate = regexp.MustCompile(`\bTRUNCATE\b`)
	reInsert   = regexp.MustCompile(`\bINSERT\b`)
	reAlter    = regexp.MustCompile(`\bALTER\s+TABLE\b`)

	reStructural = regexp.MustCompile(`\b(CREATE|DROP|TRUNCATE)\b`)
)

// dangerRules are evaluated independently; the slice order is the canonical
// output order of Classify.
var dangerRules = []dangerRule{
	{domain.OpDelete, domain.SeverityHigh, reDelete.MatchString},
	{domain.OpUpdate, domain.SeverityHigh, func(s string) bool { return reUpdate.MatchString(s) && reSet.MatchString(s) }},
	{domain.OpDrop, domain.SeverityCritical, reDrop.MatchString},
	{domain.OpTruncate, domain.SeverityCritical, reTruncate.MatchString},
	{domain.OpInsert, domain.SeverityMedium, reInsert.MatchString},
	{domain.OpAlter, domain.SeverityHigh, reAlter.MatchString},
}

// Classify returns every danger finding that applies to sql. A plain read
// yields no findings. The result depends only on the input text.
func Classify(sql string) []domain.DangerFinding {
	upper := strings.ToUpper(sql)
	var findings []domain.DangerFinding
	for _, r := range dangerRules {
		if r.match(upper) {
			findings = append(findings, domain.DangerFinding{Operation: r.op, Severity: r.severity})
		}
	}
	return findings
}

// IsStructural reports whether sql contains a CREATE, DROP or TRUNCATE token.
func IsStructural(sql string) bool {
	return reStructural.MatchString(strings.ToUpper(sql))
}

// StructuralKeyword returns the first structural keyword found, or "".
func StructuralKeyword(sql string) string {
	return reStructural.FindString(strings.ToUpper(sql))
}

// PrimaryOperation picks the compensable operation a write step performs,
// preferring the statement's leading verb over keywords found elsewhere.
func PrimaryOperation(sql string, findings []domain.DangerFinding) domain.OperationKind {
	switch leadingVerb(sql) {
	case "DELETE":
		return domain.OpDelete
	case "UPDATE":
		return domain.OpUpdate
	case "INSERT":
		return domain.OpInsert
	}
	for _, f := range findings {
		if f.Operation.Compensable() {
			return f.Operation
		}
	}
	return ""
}

// IsQuery reports whether sql starts with a row-returning verb.
func IsQuery(sql string) bool {
	switch leadingVerb(sql) {
	case "SELECT", "WITH", "VALUES", "SHOW", "EXPLAIN", "DESCRIBE", "PRAGMA", "TABLE":
		return true
	}
	return false
}

// IsReadOnly reports whether sql is a statement that reads without writing:
// a SELECT (possibly behind a CTE), VALUES, TABLE, SHOW, DESCRIBE, an EXPLAIN
// that does not execute its statement, or a PRAGMA that assigns nothing.
// Anything else, including REPLACE, MERGE, CALL and COPY, is not.
func IsReadOnly(sql string) bool {
	switch leadingVerb(sql) {
	case "SELECT", "VALUES", "TABLE", "SHOW", "DESCRIBE":
		return true
	case "WITH":
		return leadingVerbAfterCTE(sql) == "SELECT"
	case "EXPLAIN":
		for _, tok := range tokenize(sql) {
			if tok.isKeyword("ANALYZE") || tok.isKeyword("ANALYSE") {
				return false
			}
		}
		return true
	case "PRAGMA":
		for _, tok := range tokenize(sql) {
			if tok.typ == tokOther && tok.literal == "=" {
				return false
			}
		}
		return true
	}
	return false
}

// IsSelect reports whether sql is a SELECT or a CTE ending in one.
func IsSelect(sql string) bool {
	switch leadingVerb(sql) {
	case "SELECT":
		return true
	case "WITH":
		return leadingVerbAfterCTE(sql) == "SELECT"
	}
	return false
}

// leadingVerb returns the first word of sql, upper-cased, skipping comments
// and opening parentheses.
func leadingVerb(sql string) string {
	l := newLexer(sql)
	for {
		tok := l.next()
		switch tok.typ {
		case tokLParen:
			continue
		case tokWord:
			return tok.upper()
		default:
			return ""
		}
	}
}

// leadingVerbAfterCTE returns the first top-level verb after a WITH clause.
func leadingVerbAfterCTE(sql string) string {
	depth := 0
	for _, tok := range tokenize(sql) {
		switch tok.typ {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokWord:
			if depth != 0 {
				continue
			}
			switch tok.upper() {
			case "SELECT", "INSERT", "UPDATE", "DELETE":
				return tok.upper()
			}
		}
	}
	return ""
}
