package domain

import "time"

// ImageKind says whether captured rows predate or follow the statement.
type ImageKind string

// Image kinds.
const (
	ImageBefore ImageKind = "before"
	ImageAfter  ImageKind = "after"
)

// Image is the set of rows captured while executing a write so that a
// compensating statement can be built later.
type Image struct {
	Kind    ImageKind `json:"kind"`
	Table   string    `json:"table"`
	Columns []string  `json:"columns"`
	Rows    [][]any   `json:"rows"`
	// Truncated is set when more rows matched than the capture bound.
	Truncated bool `json:"truncated,omitempty"`
	// LastInsertID and InsertCount describe inserts on engines that cannot
	// return the inserted rows.
	LastInsertID int64 `json:"last_insert_id,omitempty"`
	InsertCount  int64 `json:"insert_count,omitempty"`
	// Unavailable explains why no image could be captured.
	Unavailable string `json:"unavailable,omitempty"`
}

// Column returns the index of the named column, or -1.
func (img *Image) Column(name string) int {
	for i, c := range img.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// ExecutionResult is the outcome of one executed statement. A database NULL
// is stored as a nil value so it stays distinguishable from the text "null".
type ExecutionResult struct {
	Columns      []string      `json:"columns"`
	Rows         [][]any       `json:"rows"`
	RowCount     int           `json:"row_count"`
	RowsAffected int64         `json:"rows_affected"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Write        bool          `json:"write"`
	Image        *Image        `json:"-"`
}

// ElapsedMillis returns the elapsed time in fractional milliseconds.
func (r *ExecutionResult) ElapsedMillis() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// Statement is a parameterized SQL statement.
type Statement struct {
	SQL  string
	Args []any
	// Expect is the minimum number of rows the statement must affect.
	// Zero disables the check.
	Expect int64
}
