package sqlguard

import "strings"

type tokenType int

const (
	tokEOF tokenType = iota
	tokWord
	tokQuotedIdent
	tokString
	tokNumber
	tokSemicolon
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokOther
)

// token is a lexical unit with its byte span in the input.
type token struct {
	typ     tokenType
	literal string
	pos     int
	end     int
}

// upper returns the upper-cased literal for keyword comparison.
func (t token) upper() string { return strings.ToUpper(t.literal) }

// isKeyword reports whether t is the unquoted word kw (case-insensitive).
func (t token) isKeyword(kw string) bool {
	return t.typ == tokWord && strings.EqualFold(t.literal, kw)
}

// lexer splits SQL into words, literals and punctuation. It understands
// quoting and comments well enough to find top-level clause boundaries; it is
// not a parser.
type lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *lexer) next() token {
	l.skipWhitespaceAndComments()
	start := l.pos

	switch {
	case l.pos >= len(l.input):
		return token{typ: tokEOF, pos: len(l.input), end: len(l.input)}
	case l.ch == '\'':
		lit := l.readQuoted('\'')
		return token{typ: tokString, literal: lit, pos: start, end: l.pos}
	case l.ch == '"':
		lit := l.readQuoted('"')
		return token{typ: tokQuotedIdent, literal: lit, pos: start, end: l.pos}
	case l.ch == '`':
		lit := l.readQuoted('`')
		return token{typ: tokQuotedIdent, literal: lit, pos: start, end: l.pos}
	case isLetter(l.ch) || l.ch == '_':
		for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' {
			l.readChar()
		}
		return token{typ: tokWord, literal: l.input[start:l.pos], pos: start, end: l.pos}
	case isDigit(l.ch):
		for isDigit(l.ch) || l.ch == '.' || l.ch == 'x' || l.ch == 'X' || isHex(l.ch) {
			l.readChar()
		}
		return token{typ: tokNumber, literal: l.input[start:l.pos], pos: start, end: l.pos}
	}

	var typ tokenType
	switch l.ch {
	case ';':
		typ = tokSemicolon
	case '(':
		typ = tokLParen
	case ')':
		typ = tokRParen
	case ',':
		typ = tokComma
	case '.':
		typ = tokDot
	default:
		typ = tokOther
	}
	l.readChar()
	return token{typ: typ, literal: l.input[start:l.pos], pos: start, end: l.pos}
}

func (l *lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' {
			l.readChar()
		}
		if l.ch == '-' && l.peekChar() == '-' {
			for l.ch != '\n' && l.pos < len(l.input) {
				l.readChar()
			}
			continue
		}
		if l.ch == '#' {
			for l.ch != '\n' && l.pos < len(l.input) {
				l.readChar()
			}
			continue
		}
		if l.ch == '/' && l.peekChar() == '*' {
			l.readChar()
			l.readChar()
			for l.pos < len(l.input) {
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar()
					l.readChar()
					break
				}
				l.readChar()
			}
			continue
		}
		break
	}
}

// readQuoted reads a literal delimited by q, treating a doubled q as an
// escaped delimiter. Backslash escapes are kept verbatim.
func (l *lexer) readQuoted(q byte) string {
	l.readChar()
	var b strings.Builder
	for l.pos < len(l.input) {
		if l.ch == '\\' && q == '\'' && l.peekChar() != 0 {
			b.WriteByte(l.ch)
			l.readChar()
			b.WriteByte(l.ch)
			l.readChar()
			continue
		}
		if l.ch == q {
			if l.peekChar() == q {
				b.WriteByte(q)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			break
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	return b.String()
}

// tokenize returns all tokens of sql, excluding the trailing EOF.
func tokenize(sql string) []token {
	l := newLexer(sql)
	var out []token
	for {
		tok := l.next()
		if tok.typ == tokEOF {
			return out
		}
		out = append(out, tok)
	}
}

func isLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch >= 0x80
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHex(ch byte) bool {
	return isDigit(ch) || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
}
