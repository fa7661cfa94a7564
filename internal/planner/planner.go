// Package planner turns Oracle candidates into an ordered, classified
// QueryPlan and binds dependency outputs into later steps.
package planner

import (
	"slices"
	"strings"
	"time"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// Options bounds the row limits applied to SELECT steps.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Planner builds QueryPlans. It is stateless and safe for concurrent use.
type Planner struct {
	opts Options
	now  func() time.Time
}

// New creates a Planner.
func New(opts Options) *Planner {
	return &Planner{opts: opts, now: time.Now}
}

// Plan numbers the candidates 1..n in the order given, resolves their
// dependencies against earlier steps only, and attaches danger findings.
// Placeholders referencing an earlier step add an implicit dependency.
func (p *Planner) Plan(candidates []domain.Candidate, databaseID string, mode domain.Mode) (*domain.QueryPlan, error) {
	if !mode.Valid() {
		return nil, domain.ErrValidation("unknown mode %q", mode)
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoPlanGenerated()
	}

	plan := &domain.QueryPlan{
		ID:          domain.NewID(),
		DatabaseID:  databaseID,
		Mode:        mode,
		AutoExecute: mode.DefaultAutoExecute(),
		CreatedAt:   p.now().UTC(),
		Steps:       make([]*domain.Step, 0, len(candidates)),
	}

	for i, c := range candidates {
		number := i + 1
		sql := sqlguard.TrimTerminator(c.SQL)
		if sql == "" {
			return nil, domain.ErrPlanning("step %d has no SQL", number)
		}

		deps, err := resolveDependencies(number, c.DependsOn, sql)
		if err != nil {
			return nil, err
		}

		if sqlguard.IsSelect(sql) {
			sql = sqlguard.EnforceLimit(sql, p.opts.DefaultLimit, p.opts.MaxLimit)
		}

		plan.Steps = append(plan.Steps, &domain.Step{
			Number:      number,
			SQL:         sql,
			Explanation: strings.TrimSpace(c.Explanation),
			DependsOn:   deps,
			Findings:    sqlguard.Classify(sql),
			Status:      domain.StepPending,
		})
	}
	return plan, nil
}

func resolveDependencies(number int, declared []int, sql string) ([]int, error) {
	seen := make(map[int]bool, len(declared))
	deps := make([]int, 0, len(declared))
	for _, d := range declared {
		if d == number {
			return nil, domain.ErrPlanning("step %d depends on itself", number)
		}
		if d < 1 || d > number {
			return nil, domain.ErrPlanning("step %d depends on step %d, which does not precede it", number, d)
		}
		if seen[d] {
			return nil, domain.ErrPlanning("step %d lists step %d twice", number, d)
		}
		seen[d] = true
		deps = append(deps, d)
	}

	for _, ref := range findPlaceholders(sql) {
		if ref.step >= number {
			return nil, domain.ErrPlanning("step %d references step %d, which does not precede it", number, ref.step)
		}
		if ref.step < 1 {
			return nil, domain.ErrPlanning("step %d references invalid step %d", number, ref.step)
		}
		if !seen[ref.step] {
			seen[ref.step] = true
			deps = append(deps, ref.step)
		}
	}

	slices.Sort(deps)
	if len(deps) == 0 {
		return nil, nil
	}
	return deps, nil
}
