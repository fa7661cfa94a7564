package domain

import "time"

// Mode governs whether a plan may contain destructive steps.
type Mode string

// Plan modes.
const (
	ModeReadOnly Mode = "read_only"
	ModeWrite    Mode = "write"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeReadOnly || m == ModeWrite
}

// DefaultAutoExecute returns the auto-execute default for a mode. Write
// requests start with auto-execute off.
func (m Mode) DefaultAutoExecute() bool {
	return m == ModeReadOnly
}

// StepStatus is the lifecycle state of a Step.
type StepStatus string

// Step statuses.
const (
	StepPending              StepStatus = "pending"
	StepAwaitingConfirmation StepStatus = "awaiting_confirmation"
	StepDenied               StepStatus = "denied"
	StepSkipped              StepStatus = "skipped"
	StepSucceeded            StepStatus = "succeeded"
	StepFailed               StepStatus = "failed"
	StepCanceled             StepStatus = "canceled"
)

// Candidate is one SQL statement proposed by the Oracle.
type Candidate struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation,omitempty"`
	DependsOn   []int  `json:"depends_on,omitempty"`
}

// Step is one executable unit of a QueryPlan.
type Step struct {
	Number      int             `json:"number"`
	SQL         string          `json:"sql"`
	Explanation string          `json:"explanation,omitempty"`
	DependsOn   []int           `json:"depends_on,omitempty"`
	Findings    []DangerFinding `json:"findings,omitempty"`
	Decision    *Decision       `json:"decision,omitempty"`
	Status      StepStatus      `json:"status"`
	SkipReason  string          `json:"skip_reason,omitempty"`
	// BoundSQL is the statement actually sent after placeholder binding.
	BoundSQL string           `json:"bound_sql,omitempty"`
	Result   *ExecutionResult `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
	// TimedOut is set when the step failed because it exceeded the query timeout.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Destructive reports whether the step carries any danger finding.
func (s *Step) Destructive() bool { return len(s.Findings) > 0 }

// HasOperation reports whether a finding for op is attached.
func (s *Step) HasOperation(op OperationKind) bool {
	for _, f := range s.Findings {
		if f.Operation == op {
			return true
		}
	}
	return false
}

// QueryPlan is the ordered set of steps derived from one question.
type QueryPlan struct {
	ID          string    `json:"id"`
	Question    string    `json:"question,omitempty"`
	DatabaseID  string    `json:"database_id"`
	Mode        Mode      `json:"mode"`
	AutoExecute bool      `json:"auto_execute"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	// Started is set once the first step is dispatched; a started plan is
	// never executed again.
	Started bool    `json:"started"`
	Steps   []*Step `json:"steps"`
}

// Step returns the step with the given 1-based number, or nil.
func (p *QueryPlan) Step(n int) *Step {
	if n < 1 || n > len(p.Steps) {
		return nil
	}
	return p.Steps[n-1]
}

// Verdict is the outcome of a Policy Gate evaluation.
type Verdict string

// Verdicts.
const (
	VerdictAllow               Verdict = "allow"
	VerdictDeny                Verdict = "deny"
	VerdictRequireConfirmation Verdict = "require_confirmation"
)

// Decision is a Policy Gate verdict with its reason.
type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
}

// Warning is the advisory payload surfaced for high and critical findings.
type Warning struct {
	Step      int           `json:"step"`
	Operation OperationKind `json:"operation"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message"`
}
