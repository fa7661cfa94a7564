package sqlguard

import (
	"strconv"
	"strings"
)

// EnforceLimit adds "LIMIT defaultLimit" to a SELECT without a top-level row limit
// and clamps an existing numeric limit above maxLimit. The limit goes ahead of
// a top-level OFFSET or locking clause (FOR UPDATE, FOR SHARE, LOCK IN SHARE
// MODE), otherwise at the end. Non-SELECT statements are returned unchanged. A
// non-positive defaultLimit or maxLimit disables that half.
func EnforceLimit(sql string, defaultLimit, maxLimit int) string {
	if !IsSelect(sql) {
		return sql
	}
	toks := tokenize(sql)
	depth := 0
	tail := -1
	for i, tok := range toks {
		switch tok.typ {
		case tokLParen:
			depth++
			continue
		case tokRParen:
			depth--
			continue
		}
		if depth != 0 || tok.typ != tokWord {
			continue
		}
		switch tok.upper() {
		case "FETCH", "TOP":
			return sql
		case "OFFSET", "FOR", "LOCK":
			if tail < 0 {
				tail = i
			}
		case "LIMIT":
			if i+1 >= len(toks) || toks[i+1].typ != tokNumber {
				return sql
			}
			n, err := strconv.Atoi(toks[i+1].literal)
			if err != nil || maxLimit <= 0 || n <= maxLimit {
				return sql
			}
			return sql[:toks[i+1].pos] + strconv.Itoa(maxLimit) + sql[toks[i+1].end:]
		}
	}
	if defaultLimit <= 0 {
		return sql
	}
	last := lastSignificant(toks)
	if last < 0 {
		return sql
	}
	limit := "LIMIT " + strconv.Itoa(defaultLimit)
	if tail >= 0 {
		return strings.TrimRight(sql[:toks[tail].pos], " \t\r\n") + " " + limit + " " + sql[toks[tail].pos:toks[last].end]
	}
	return sql[:toks[last].end] + " " + limit
}

// lastSignificant returns the index of the last token that is not a
// statement terminator, or -1.
func lastSignificant(toks []token) int {
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].typ != tokSemicolon {
			return i
		}
	}
	return -1
}
