package domain

// OperationKind names a destructive statement class.
type OperationKind string

// Operation kinds detected by the classifier.
const (
	OpInsert   OperationKind = "INSERT"
	OpUpdate   OperationKind = "UPDATE"
	OpDelete   OperationKind = "DELETE"
	OpAlter    OperationKind = "ALTER"
	OpDrop     OperationKind = "DROP"
	OpTruncate OperationKind = "TRUNCATE"
)

// Compensable reports whether the rollback coordinator can build an inverse
// statement for the operation.
func (o OperationKind) Compensable() bool {
	return o == OpInsert || o == OpUpdate || o == OpDelete
}

// Structural reports whether the operation changes schema rather than rows.
func (o OperationKind) Structural() bool {
	return o == OpAlter || o == OpDrop || o == OpTruncate
}

// Severity is an ordinal danger level.
type Severity string

// Severities, from least to most dangerous.
const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: medium < high < critical. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool { return s.Rank() >= other.Rank() }

// DangerFinding tags a statement with one detected destructive operation.
type DangerFinding struct {
	Operation OperationKind `json:"operation"`
	Severity  Severity      `json:"severity"`
}

// MaxSeverity returns the highest severity among findings, or "" for none.
func MaxSeverity(findings []DangerFinding) Severity {
	var top Severity
	for _, f := range findings {
		if f.Severity.Rank() > top.Rank() {
			top = f.Severity
		}
	}
	return top
}
