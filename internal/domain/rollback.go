package domain

import "time"

// RollbackEntry describes one executed write step that a rollback would undo.
type RollbackEntry struct {
	StepNumber   int           `json:"step_number"`
	SQL          string        `json:"sql"`
	Operation    OperationKind `json:"operation"`
	Table        string        `json:"table"`
	RowsAffected int64         `json:"rows_affected"`
	Image        *Image        `json:"-"`
}

// RollbackRecord is the single live undo offer of a session.
type RollbackRecord struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	PlanID     string          `json:"plan_id"`
	DatabaseID string          `json:"database_id"`
	Question   string          `json:"question,omitempty"`
	Performer  string          `json:"performer,omitempty"`
	Entries    []RollbackEntry `json:"entries"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Expired reports whether the record's window has closed at now.
func (r *RollbackRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Remaining returns the time left in the window, never negative.
func (r *RollbackRecord) Remaining(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RollbackOutcome reports what a compensation run did.
type RollbackOutcome struct {
	RecordID     string `json:"record_id"`
	Statements   int    `json:"statements"`
	RowsRestored int64  `json:"rows_restored"`
}
