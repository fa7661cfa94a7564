package oracle

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

const (
	defaultExplanation = "SQL query generated successfully."
	maxExplanation     = 500
)

var (
	reSQLBlock   = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")
	reAnyBlock   = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	reExplLabel  = regexp.MustCompile(`(?i)\**explanation:\**`)
	reJSONFenced = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")
)

type stepsEnvelope struct {
	Steps []domain.Candidate `json:"steps"`
}

// parseResponse extracts candidates from a model answer. The JSON steps
// format is preferred; fenced SQL blocks are the fallback. Multi-statement
// blocks become one candidate per statement.
func parseResponse(text string) []domain.Candidate {
	if c := parseJSON(text); len(c) > 0 {
		return c
	}

	blocks := reSQLBlock.FindAllStringSubmatch(text, -1)
	if len(blocks) == 0 {
		blocks = reAnyBlock.FindAllStringSubmatch(text, -1)
	}
	explanation := extractExplanation(text)

	var out []domain.Candidate
	for _, m := range blocks {
		body := strings.TrimSpace(m[1])
		if len(body) >= 3 && strings.EqualFold(body[:3], "sql") {
			body = strings.TrimSpace(body[3:])
		}
		for _, stmt := range sqlguard.SplitStatements(body) {
			out = append(out, domain.Candidate{SQL: stmt, Explanation: explanation})
		}
	}
	return out
}

func parseJSON(text string) []domain.Candidate {
	raw := text
	if m := reJSONFenced.FindStringSubmatch(text); m != nil {
		raw = m[1]
	}
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return nil
	}
	var env stepsEnvelope
	if err := json.Unmarshal([]byte(raw[start:end+1]), &env); err != nil {
		return nil
	}
	// Blank steps are kept so that step numbers, and the dependencies and
	// placeholders referring to them, stay as the model wrote them. The
	// planner rejects them.
	out := make([]domain.Candidate, 0, len(env.Steps))
	for _, c := range env.Steps {
		c.SQL = strings.TrimSpace(c.SQL)
		c.Explanation = clip(strings.TrimSpace(c.Explanation))
		if c.Explanation == "" {
			c.Explanation = defaultExplanation
		}
		out = append(out, c)
	}
	return out
}

func extractExplanation(text string) string {
	rest := reAnyBlock.ReplaceAllString(text, "")
	if loc := reExplLabel.FindStringIndex(rest); loc != nil {
		rest = rest[loc[1]:]
	}
	rest = clip(strings.TrimSpace(rest))
	if rest == "" {
		return defaultExplanation
	}
	return rest
}

// clip shortens s to at most maxExplanation bytes without splitting a rune.
func clip(s string) string {
	if len(s) <= maxExplanation {
		return s
	}
	cut := maxExplanation - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
