package query

import (
	"time"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// AskRequest is a natural-language question.
type AskRequest struct {
	Question   string
	DatabaseID string
	ReadOnly   bool
	// Execute overrides the mode's auto-execute default when set.
	Execute       *bool
	IncludeSchema bool
}

// DirectRequest is a single SQL statement submitted without the Oracle.
type DirectRequest struct {
	SQL        string
	DatabaseID string
	ReadOnly   bool
	Execute    *bool
}

// ExecuteOptions names the steps a caller confirms when running a stored plan.
type ExecuteOptions struct {
	Confirm    []int
	ConfirmAll bool
}

// Summary counts plan steps by outcome.
type Summary struct {
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
	Denied   int `json:"denied"`
	Pending  int `json:"pending"`
	Canceled int `json:"canceled"`
}

// RollbackHandle is the public view of a live rollback record.
type RollbackHandle struct {
	ID               string    `json:"id"`
	PlanID           string    `json:"plan_id"`
	DatabaseID       string    `json:"database_id"`
	Question         string    `json:"question,omitempty"`
	Steps            []int     `json:"steps"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// Dependent counts rows in a child table that reference rows a DELETE
// would remove.
type Dependent struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnDelete string `json:"on_delete,omitempty"`
	Rows     int64  `json:"rows"`
}

// Impact previews what a pending DELETE or UPDATE step would touch.
type Impact struct {
	Step        int         `json:"step"`
	Operation   string      `json:"operation"`
	Table       string      `json:"table"`
	MatchedRows int64       `json:"matched_rows"`
	Dependents  []Dependent `json:"dependents,omitempty"`
}

// PlanResponse is the outcome of submitting or executing a plan.
type PlanResponse struct {
	Plan     *domain.QueryPlan `json:"plan"`
	Warnings []domain.Warning  `json:"warnings,omitempty"`
	Summary  Summary           `json:"summary"`
	Rollback *RollbackHandle   `json:"rollback,omitempty"`
	Impact   []Impact          `json:"impact,omitempty"`
	Schema   []domain.Table    `json:"schema,omitempty"`
}

func summarize(plan *domain.QueryPlan) Summary {
	var s Summary
	for _, st := range plan.Steps {
		switch st.Status {
		case domain.StepSucceeded:
			s.Executed++
		case domain.StepFailed:
			s.Failed++
		case domain.StepSkipped:
			s.Skipped++
		case domain.StepDenied:
			s.Denied++
		case domain.StepPending, domain.StepAwaitingConfirmation:
			s.Pending++
		case domain.StepCanceled:
			s.Canceled++
		}
	}
	return s
}
