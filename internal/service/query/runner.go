package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/planner"
	"github.com/jmanoj0905/natural-language-sql/internal/service/auditutil"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// run executes the plan's steps strictly in order. Only pending steps and
// confirmed awaiting steps are dispatched; a step whose dependency did not
// succeed with a usable row is skipped. Cancellation is checked before each
// step. After the last step a write plan is offered for rollback.
//
// ctx must come from start, so that Cancel can reach the run.
func (s *Service) run(ctx context.Context, t *tracked, confirmed map[int]bool) *PlanResponse {
	plan := t.plan
	log := s.logger.With("plan", plan.ID, "database", plan.DatabaseID)
	dialect, derr := s.deps.Executor.Dialect(plan.DatabaseID)
	results := make(map[int]*domain.ExecutionResult, len(plan.Steps))

	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			t.update(func() { cancelRemaining(plan, "plan canceled") })
			log.Info("plan canceled", "before_step", step.Number)
			break
		}

		var sqlText string
		dispatch := false
		t.update(func() {
			switch step.Status {
			case domain.StepPending:
			case domain.StepAwaitingConfirmation:
				if !confirmed[step.Number] {
					return
				}
			default:
				return
			}
			if reason := blockedBy(plan, step); reason != "" {
				skip(step, reason)
				return
			}
			if derr != nil {
				step.Status = domain.StepFailed
				step.Error = derr.Error()
				return
			}
			bound, reason := planner.Bind(step, results, dialect)
			if reason != "" {
				skip(step, reason)
				return
			}
			step.BoundSQL = bound
			sqlText = bound
			dispatch = true
		})
		if !dispatch {
			continue
		}

		op := sqlguard.PrimaryOperation(sqlText, step.Findings)
		opts := domain.ExecOptions{ReadOnly: plan.Mode == domain.ModeReadOnly}
		if op.Compensable() {
			opts.Operation = op
			opts.Capture = plan.Mode == domain.ModeWrite
		}

		res, err := s.deps.Executor.Execute(ctx, plan.DatabaseID, sqlText, opts)
		if err != nil {
			var ee *domain.ExecutionError
			timedOut := errors.As(err, &ee) && ee.Timeout
			t.update(func() {
				step.Status = domain.StepFailed
				step.Error = err.Error()
				step.TimedOut = timedOut
			})
			log.Warn("step failed", "step", step.Number, "timed_out", timedOut, "error", err)
			continue
		}
		t.update(func() {
			step.Status = domain.StepSucceeded
			step.Result = res
		})
		results[step.Number] = res
		log.Info("step executed", "step", step.Number, "rows", res.RowCount, "affected", res.RowsAffected, "elapsed_ms", res.ElapsedMillis())

		if step.Destructive() {
			auditutil.Append(ctx, s.deps.Audit, s.logger, s.auditRecord(t, step, op, sqlText, res))
		}
	}

	resp := s.respond(t)
	if plan.Mode == domain.ModeWrite && s.deps.Rollback != nil {
		if rec, ok := s.deps.Rollback.Offer(plan.SessionID, resp.Plan, t.performer); ok {
			resp.Rollback = s.handle(rec)
		}
	}
	sum := resp.Summary
	log.Info("plan finished", "executed", sum.Executed, "failed", sum.Failed, "skipped", sum.Skipped,
		"denied", sum.Denied, "pending", sum.Pending, "canceled", sum.Canceled)
	return resp
}

// blockedBy returns why step cannot run given the state of its dependencies,
// or "" when every dependency succeeded with a usable row.
func blockedBy(plan *domain.QueryPlan, step *domain.Step) string {
	for _, d := range step.DependsOn {
		dep := plan.Step(d)
		if dep == nil {
			return fmt.Sprintf("dependency step %d does not exist", d)
		}
		switch dep.Status {
		case domain.StepSucceeded:
			if !planner.Usable(dep.Result) {
				return fmt.Sprintf("dependency step %d returned no rows", d)
			}
		case domain.StepFailed:
			if dep.TimedOut {
				return fmt.Sprintf("dependency step %d timed out", d)
			}
			return fmt.Sprintf("dependency step %d failed", d)
		case domain.StepPending, domain.StepAwaitingConfirmation:
			return fmt.Sprintf("dependency step %d was not executed", d)
		default:
			return fmt.Sprintf("dependency step %d was %s", d, dep.Status)
		}
	}
	return ""
}

func skip(step *domain.Step, reason string) {
	step.Status = domain.StepSkipped
	step.SkipReason = reason
}

// cancelRemaining marks every step that has not reached a final state as
// canceled.
func cancelRemaining(plan *domain.QueryPlan, reason string) {
	for _, st := range plan.Steps {
		if st.Status == domain.StepPending || st.Status == domain.StepAwaitingConfirmation {
			st.Status = domain.StepCanceled
			st.SkipReason = reason
		}
	}
}

func (s *Service) auditRecord(t *tracked, step *domain.Step, op domain.OperationKind, sqlText string, res *domain.ExecutionResult) *domain.AuditRecord {
	if op == "" && len(step.Findings) > 0 {
		op = step.Findings[0].Operation
	}
	rec := &domain.AuditRecord{
		OperationType: string(op),
		Performer:     t.performer,
		DatabaseID:    t.plan.DatabaseID,
		SQL:           sqlText,
		RowsAffected:  res.RowsAffected,
		Reason:        auditReason(t.plan),
	}
	if target, err := sqlguard.ExtractTarget(sqlText); err == nil {
		rec.TableName = target.Table
		rec.RecordIdentifier = whereBody(target.Filter)
	}
	if img := res.Image; img != nil {
		if rec.TableName == "" {
			rec.TableName = img.Table
		}
		if img.Kind == domain.ImageBefore {
			rec.PreImage = auditutil.RowsJSON(img.Columns, img.Rows)
		}
	}
	for _, im := range t.impact {
		if im.Step == step.Number && len(im.Dependents) > 0 {
			rec.CascadeImpact = cascadeJSON(im.Dependents)
		}
	}
	return rec
}

func auditReason(plan *domain.QueryPlan) string {
	if plan.Question != "" {
		return "natural-language request: " + plan.Question
	}
	return "direct SQL request"
}

// whereBody strips a leading WHERE keyword from a filter clause.
func whereBody(filter string) string {
	if len(filter) >= 5 && strings.EqualFold(filter[:5], "WHERE") {
		filter = filter[5:]
	}
	return strings.TrimSpace(filter)
}
