package query

import (
	"context"
	"math"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/service/auditutil"
)

// RollbackStatus returns the live rollback record of the caller's session.
func (s *Service) RollbackStatus(ctx context.Context) (*RollbackHandle, error) {
	rec, ok := s.deps.Rollback.Get(sessionOf(ctx).ID)
	if !ok {
		return nil, domain.ErrNotFound("no rollback available")
	}
	return s.handle(rec), nil
}

// Rollback compensates the caller's live record and audits the run.
func (s *Service) Rollback(ctx context.Context, recordID string) (*domain.RollbackOutcome, error) {
	sess := sessionOf(ctx)
	rec, _ := s.deps.Rollback.Get(sess.ID)

	outcome, err := s.deps.Rollback.Rollback(ctx, sess.ID, recordID)
	if err != nil {
		return nil, err
	}

	audit := &domain.AuditRecord{
		OperationType:    "ROLLBACK",
		RecordIdentifier: recordID,
		Performer:        sess.Performer,
		RowsAffected:     outcome.RowsRestored,
		Reason:           "compensation",
	}
	if rec != nil && rec.ID == recordID {
		var tables, stmts []string
		for _, e := range rec.Entries {
			tables = append(tables, e.Table)
			stmts = append(stmts, e.SQL)
		}
		audit.TableName = strings.Join(tables, ",")
		audit.DatabaseID = rec.DatabaseID
		audit.SQL = strings.Join(stmts, ";\n")
		audit.Reason = "compensation of plan " + rec.PlanID
	}
	auditutil.Append(ctx, s.deps.Audit, s.logger, audit)
	return outcome, nil
}

// Keep confirms the caller's changes and discards the record.
func (s *Service) Keep(ctx context.Context, recordID string) error {
	return s.deps.Rollback.Keep(sessionOf(ctx).ID, recordID)
}

// Countdown streams the remaining whole ticks of the caller's record.
func (s *Service) Countdown(ctx context.Context, recordID string) (<-chan int, error) {
	return s.deps.Rollback.Countdown(ctx, sessionOf(ctx).ID, recordID)
}

func (s *Service) handle(rec *domain.RollbackRecord) *RollbackHandle {
	steps := make([]int, len(rec.Entries))
	for i, e := range rec.Entries {
		steps[i] = e.StepNumber
	}
	return &RollbackHandle{
		ID:               rec.ID,
		PlanID:           rec.PlanID,
		DatabaseID:       rec.DatabaseID,
		Question:         rec.Question,
		Steps:            steps,
		ExpiresAt:        rec.ExpiresAt,
		RemainingSeconds: int(math.Ceil(s.deps.Rollback.Remaining(rec).Seconds())),
	}
}
