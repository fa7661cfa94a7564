package sqlguard

import (
	"fmt"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Target is the single table a DML statement writes to.
type Target struct {
	Operation domain.OperationKind
	// Table is the relation name as written, possibly schema-qualified and quoted.
	Table string
	// Relation is Table plus any alias, usable after FROM in a capture query.
	Relation string
	// Filter is the trailing WHERE/ORDER BY/LIMIT text of DELETE and UPDATE,
	// empty when the statement touches every row.
	Filter string
	// HasReturning is set when the statement already carries RETURNING.
	HasReturning bool
	// Upsert is set for INSERT ... ON CONFLICT / ON DUPLICATE KEY.
	Upsert bool
	// SetColumns lists the columns an UPDATE assigns, unqualified and unquoted.
	SetColumns []string
}

// CaptureQuery returns the SELECT that reads the rows a DELETE or UPDATE is
// about to change.
func (t *Target) CaptureQuery() string {
	q := "SELECT * FROM " + t.Relation
	if t.Filter != "" {
		q += " " + t.Filter
	}
	return q
}

// CountQuery returns a SELECT COUNT(*) over the rows the statement matches.
func (t *Target) CountQuery() string {
	q := "SELECT COUNT(*) FROM " + t.Relation
	if t.Filter != "" {
		q += " " + t.Filter
	}
	return q
}

var tableModifiers = map[string]bool{"ONLY": true, "LOW_PRIORITY": true, "QUICK": true, "IGNORE": true}

// ExtractTarget finds the target table of a single-table INSERT, UPDATE or
// DELETE. Multi-table forms (USING, UPDATE ... FROM, joins) and CTE-prefixed
// statements are reported as unsupported.
func ExtractTarget(sql string) (*Target, error) {
	toks := tokenize(sql)
	if n := lastSignificant(toks); n >= 0 {
		toks = toks[:n+1]
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty statement")
	}

	i := 0
	verb := toks[i].upper()
	i++
	t := &Target{}
	switch verb {
	case "DELETE":
		t.Operation = domain.OpDelete
		i = skipModifiers(toks, i)
		if i >= len(toks) || !toks[i].isKeyword("FROM") {
			return nil, fmt.Errorf("unsupported DELETE form")
		}
		i++
	case "UPDATE":
		t.Operation = domain.OpUpdate
	case "INSERT":
		t.Operation = domain.OpInsert
		i = skipModifiers(toks, i)
		if i < len(toks) && toks[i].isKeyword("INTO") {
			i++
		}
	default:
		return nil, fmt.Errorf("unsupported statement %q", verb)
	}
	i = skipModifiers(toks, i)

	start, end, next, ok := readRelation(toks, i)
	if !ok {
		return nil, fmt.Errorf("cannot find target table of %s", verb)
	}
	t.Table = sql[toks[start].pos:toks[end].end]
	relEnd := end
	i = next

	if t.Operation != domain.OpInsert {
		// Optional alias: [AS] name.
		if i < len(toks) && toks[i].isKeyword("AS") {
			i++
		}
		if i < len(toks) && (toks[i].typ == tokWord || toks[i].typ == tokQuotedIdent) && !isClauseWord(toks[i]) {
			relEnd = i
			i++
		}
	}
	t.Relation = sql[toks[start].pos:toks[relEnd].end]

	switch t.Operation {
	case domain.OpInsert:
		t.Upsert = hasTopLevelSequence(toks[i:], "ON", "CONFLICT") || hasTopLevelSequence(toks[i:], "ON", "DUPLICATE")
		t.HasReturning = hasTopLevelWord(toks[i:], "RETURNING")
		return t, nil
	case domain.OpUpdate:
		if i >= len(toks) || !toks[i].isKeyword("SET") {
			return nil, fmt.Errorf("unsupported UPDATE form")
		}
		setEnd := skipToTopLevel(toks, i+1, "WHERE", "ORDER", "LIMIT", "RETURNING", "FROM")
		if setEnd < len(toks) && toks[setEnd].isKeyword("FROM") {
			return nil, fmt.Errorf("UPDATE ... FROM is not supported")
		}
		t.SetColumns = setColumns(toks[i+1 : setEnd])
		i = setEnd
	}

	if i < len(toks) && !toks[i].isKeyword("WHERE") && !toks[i].isKeyword("ORDER") &&
		!toks[i].isKeyword("LIMIT") && !toks[i].isKeyword("RETURNING") {
		return nil, fmt.Errorf("unsupported %s form near %q", verb, toks[i].literal)
	}
	filterEnd := skipToTopLevel(toks, i, "RETURNING")
	t.HasReturning = filterEnd < len(toks)
	if i < filterEnd {
		t.Filter = strings.TrimSpace(sql[toks[i].pos:toks[filterEnd-1].end])
	}
	return t, nil
}

// setColumns returns the assigned columns of an UPDATE SET list. Each
// top-level assignment is either col = expr, with col possibly qualified, or
// (a, b) = (...).
func setColumns(toks []token) []string {
	var cols []string
	for start := 0; start < len(toks); {
		end := start
		for depth := 0; end < len(toks); end++ {
			if toks[end].typ == tokLParen {
				depth++
			} else if toks[end].typ == tokRParen {
				depth--
			} else if toks[end].typ == tokComma && depth == 0 {
				break
			}
		}
		cols = append(cols, assignedColumns(toks[start:end])...)
		start = end + 1
	}
	return cols
}

func assignedColumns(toks []token) []string {
	isIdent := func(t token) bool { return t.typ == tokWord || t.typ == tokQuotedIdent }
	if len(toks) > 0 && toks[0].typ == tokLParen {
		var cols []string
		for i := 1; i < len(toks) && toks[i].typ != tokRParen; i++ {
			if isIdent(toks[i]) && i+1 < len(toks) && (toks[i+1].typ == tokComma || toks[i+1].typ == tokRParen) {
				cols = append(cols, toks[i].literal)
			}
		}
		return cols
	}
	var last string
	for _, tok := range toks {
		if tok.typ == tokOther && tok.literal == "=" {
			break
		}
		if isIdent(tok) {
			last = tok.literal
		}
	}
	if last == "" {
		return nil
	}
	return []string{last}
}

// readRelation reads ident(.ident)* starting at i and returns the first and
// last token index and the index after the relation.
func readRelation(toks []token, i int) (start, end, next int, ok bool) {
	if i >= len(toks) || (toks[i].typ != tokWord && toks[i].typ != tokQuotedIdent) {
		return 0, 0, 0, false
	}
	start, end = i, i
	i++
	for i+1 < len(toks) && toks[i].typ == tokDot &&
		(toks[i+1].typ == tokWord || toks[i+1].typ == tokQuotedIdent) {
		end = i + 1
		i += 2
	}
	return start, end, i, true
}

func skipModifiers(toks []token, i int) int {
	for i < len(toks) && toks[i].typ == tokWord && tableModifiers[toks[i].upper()] {
		i++
	}
	return i
}

// skipToTopLevel returns the index of the first depth-0 token matching one of
// words, or len(toks).
func skipToTopLevel(toks []token, i int, words ...string) int {
	depth := 0
	for ; i < len(toks); i++ {
		switch toks[i].typ {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		case tokWord:
			if depth != 0 {
				continue
			}
			for _, w := range words {
				if toks[i].isKeyword(w) {
					return i
				}
			}
		}
	}
	return i
}

func hasTopLevelWord(toks []token, word string) bool {
	return skipToTopLevel(toks, 0, word) < len(toks)
}

func hasTopLevelSequence(toks []token, first, second string) bool {
	for i := skipToTopLevel(toks, 0, first); i < len(toks); i = skipToTopLevel(toks, i+1, first) {
		if i+1 < len(toks) && toks[i+1].isKeyword(second) {
			return true
		}
	}
	return false
}

var clauseWords = map[string]bool{
	"SET": true, "WHERE": true, "USING": true, "ORDER": true, "LIMIT": true,
	"RETURNING": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"CROSS": true, "FROM": true, "VALUES": true, "SELECT": true, "DEFAULT": true,
}

func isClauseWord(t token) bool {
	return t.typ == tokWord && clauseWords[t.upper()]
}
