// Package policy decides, per plan step, whether it may run now, must wait
// for a human confirmation, or may not run at all.
package policy

import (
	"fmt"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// Deny reasons.
const (
	ReasonReadOnly   = "write operation in read-only mode"
	ReasonStructural = "structural operation not permitted"
)

// Options configures a Gate.
type Options struct {
	// StrictSQL enables the strict sanitizer patterns (comments, UNION
	// injection, information_schema access, encoded payloads).
	StrictSQL bool
}

// Gate evaluates plan steps against the mode and the auto-execute flag.
// It holds no per-request state and is safe for concurrent use.
type Gate struct {
	opts Options
}

// New creates a Gate.
func New(opts Options) *Gate {
	return &Gate{opts: opts}
}

// Authorize returns the verdict for one step. Rules apply in order and the
// first match wins:
//
//  1. read_only with any finding: deny.
//  2. CREATE, DROP or TRUNCATE anywhere in the statement: deny, in every mode.
//  3. a blocked sanitizer pattern: deny.
//  4. read_only with anything but a plain read: deny.
//  5. write with findings: require confirmation when auto-execute is off or
//     any finding is critical.
//  6. allow.
func (g *Gate) Authorize(step *domain.Step, mode domain.Mode, autoExecute bool) domain.Decision {
	if mode == domain.ModeReadOnly && step.Destructive() {
		return deny(ReasonReadOnly)
	}
	if sqlguard.IsStructural(step.SQL) {
		return deny(ReasonStructural)
	}
	if blocked := sqlguard.Sanitize(step.SQL, g.opts.StrictSQL); len(blocked) > 0 {
		return deny("blocked pattern: " + strings.Join(blocked, ", "))
	}
	if mode == domain.ModeReadOnly && !sqlguard.IsReadOnly(step.SQL) {
		return deny(ReasonReadOnly)
	}
	if mode == domain.ModeWrite && step.Destructive() {
		if domain.MaxSeverity(step.Findings) == domain.SeverityCritical {
			return domain.Decision{
				Verdict: domain.VerdictRequireConfirmation,
				Reason:  "critical operation requires explicit confirmation",
			}
		}
		if !autoExecute {
			return domain.Decision{
				Verdict: domain.VerdictRequireConfirmation,
				Reason:  "auto-execute is off for write operations",
			}
		}
	}
	return domain.Decision{Verdict: domain.VerdictAllow}
}

// AuthorizePlan stamps a decision on every step of plan and returns the first
// denial, or nil.
func (g *Gate) AuthorizePlan(plan *domain.QueryPlan) *domain.PolicyDeniedError {
	var first *domain.PolicyDeniedError
	for _, s := range plan.Steps {
		d := g.Authorize(s, plan.Mode, plan.AutoExecute)
		s.Decision = &d
		switch d.Verdict {
		case domain.VerdictDeny:
			s.Status = domain.StepDenied
			s.Error = d.Reason
			if first == nil {
				first = &domain.PolicyDeniedError{Step: s.Number, Reason: d.Reason}
			}
		case domain.VerdictRequireConfirmation:
			s.Status = domain.StepAwaitingConfirmation
		}
	}
	return first
}

// Warnings lists every high or critical finding of plan, whatever the
// verdict of its step.
func Warnings(plan *domain.QueryPlan) []domain.Warning {
	var out []domain.Warning
	for _, s := range plan.Steps {
		for _, f := range s.Findings {
			if !f.Severity.AtLeast(domain.SeverityHigh) {
				continue
			}
			out = append(out, domain.Warning{
				Step:      s.Number,
				Operation: f.Operation,
				Severity:  f.Severity,
				Message:   warningMessage(f),
			})
		}
	}
	return out
}

func warningMessage(f domain.DangerFinding) string {
	switch f.Operation {
	case domain.OpDelete:
		return "DELETE permanently removes rows"
	case domain.OpUpdate:
		return "UPDATE modifies existing rows"
	case domain.OpDrop:
		return "DROP removes the object and all of its data"
	case domain.OpTruncate:
		return "TRUNCATE removes every row and cannot be undone"
	case domain.OpAlter:
		return "ALTER changes the table structure"
	default:
		return fmt.Sprintf("%s is a %s severity operation", f.Operation, f.Severity)
	}
}

func deny(reason string) domain.Decision {
	return domain.Decision{Verdict: domain.VerdictDeny, Reason: reason}
}
