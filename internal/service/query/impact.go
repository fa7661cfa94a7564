package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/planner"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// preview counts the rows each not-yet-run DELETE or UPDATE step would touch
// and, for DELETE, the rows in other tables referencing them. Steps with
// placeholders cannot be previewed. Failures are logged and leave the step
// out of the preview.
func (s *Service) preview(ctx context.Context, plan *domain.QueryPlan, tables []domain.Table) []Impact {
	if plan.Mode != domain.ModeWrite || plan.AutoExecute {
		return nil
	}

	var out []Impact
	for _, st := range plan.Steps {
		if st.Status != domain.StepAwaitingConfirmation || planner.HasPlaceholders(st.SQL) {
			continue
		}
		target, err := sqlguard.ExtractTarget(st.SQL)
		if err != nil || target.Operation == domain.OpInsert {
			continue
		}

		if tables == nil {
			if tables, err = s.deps.Schema.GetSchema(ctx, plan.DatabaseID); err != nil {
				s.logger.Warn("impact preview without schema", "plan", plan.ID, "error", err)
				tables = []domain.Table{}
			}
		}

		im, err := s.impactOf(ctx, plan.DatabaseID, st.Number, target, tables)
		if err != nil {
			s.logger.Warn("impact preview failed", "plan", plan.ID, "step", st.Number, "error", err)
			continue
		}
		out = append(out, *im)
	}
	return out
}

func (s *Service) impactOf(ctx context.Context, dbID string, step int, target *sqlguard.Target, tables []domain.Table) (*Impact, error) {
	matched, err := s.count(ctx, dbID, target.CountQuery())
	if err != nil {
		return nil, err
	}
	table := bareName(target.Table)
	im := &Impact{Step: step, Operation: string(target.Operation), Table: table, MatchedRows: matched}
	if target.Operation != domain.OpDelete || matched == 0 {
		return im, nil
	}

	dialect, err := s.deps.Executor.Dialect(dbID)
	if err != nil {
		return nil, err
	}
	for _, child := range tables {
		for _, fk := range child.ForeignKeys {
			if !strings.EqualFold(fk.RefTable, table) {
				continue
			}
			q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IN (SELECT %s FROM %s",
				dialect.QuoteIdent(child.Name), dialect.QuoteIdent(fk.Column),
				dialect.QuoteIdent(fk.RefColumn), target.Relation)
			if target.Filter != "" {
				q += " " + target.Filter
			}
			q += ")"
			n, err := s.count(ctx, dbID, q)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				im.Dependents = append(im.Dependents, Dependent{
					Table: child.Name, Column: fk.Column, OnDelete: fk.OnDelete, Rows: n,
				})
			}
		}
	}
	return im, nil
}

func (s *Service) count(ctx context.Context, dbID, q string) (int64, error) {
	res, err := s.deps.Executor.Query(ctx, dbID, q)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 || len(res.Rows[0]) == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	switch v := res.Rows[0][0].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		var n int64
		_, err := fmt.Sscan(v, &n)
		return n, err
	default:
		var n int64
		_, err := fmt.Sscan(fmt.Sprint(v), &n)
		return n, err
	}
}

func cascadeJSON(deps []Dependent) string {
	b, err := json.Marshal(deps)
	if err != nil {
		return ""
	}
	return string(b)
}

// bareName strips schema qualification and identifier quotes.
func bareName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.Trim(name, "\"`[]")
}
