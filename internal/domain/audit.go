package domain

import "time"

// AuditRecord is an append-only entry written for every executed
// destructive step and every compensation run.
type AuditRecord struct {
	ID               string
	OperationType    string
	TableName        string
	RecordIdentifier string
	PreImage         string // JSON rows captured before the change
	CascadeImpact    string // JSON summary of dependent rows
	Performer        string
	Reason           string
	DatabaseID       string
	SQL              string
	RowsAffected     int64
	Timestamp        time.Time
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	OperationType string
	TableName     string
	DatabaseID    string
	Limit         int
	Offset        int
}

// Default and maximum audit page sizes.
const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// EffectiveLimit clamps Limit to [1, MaxAuditLimit].
func (f AuditFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultAuditLimit
	}
	if f.Limit > MaxAuditLimit {
		return MaxAuditLimit
	}
	return f.Limit
}
