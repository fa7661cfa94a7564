package domain

import "context"

// SchemaProvider supplies table and column metadata for a database.
type SchemaProvider interface {
	GetSchema(ctx context.Context, databaseID string) ([]Table, error)
}

// OracleRequest is everything the Oracle needs to propose SQL.
type OracleRequest struct {
	Question string
	Mode     Mode
	Dialect  string
	Schema   []Table
}

// SQLOracle turns a natural-language question into candidate statements.
// It generates text only and never touches a database.
type SQLOracle interface {
	Generate(ctx context.Context, req OracleRequest) ([]Candidate, error)
}

// AuditSink receives one record per executed destructive action.
type AuditSink interface {
	Append(ctx context.Context, rec *AuditRecord) error
}

// AuditRepository is an AuditSink that can also be listed.
type AuditRepository interface {
	AuditSink
	List(ctx context.Context, filter AuditFilter) ([]AuditRecord, int64, error)
}

// Dialect renders engine-specific SQL fragments.
type Dialect interface {
	Name() DatabaseType
	QuoteIdent(name string) string
	Placeholder(n int) string
	Literal(v any) string
	SupportsReturning() bool
}

// ExecOptions tunes a single statement execution.
type ExecOptions struct {
	// Operation is the dominant compensable operation of the statement, if any.
	Operation OperationKind
	// Capture requests a row image for later compensation.
	Capture bool
	// ReadOnly refuses any statement that is not a plain read.
	ReadOnly bool
}

// StatementExecutor runs statements against registered databases.
type StatementExecutor interface {
	Execute(ctx context.Context, databaseID, sql string, opts ExecOptions) (*ExecutionResult, error)
	ExecuteCompensation(ctx context.Context, databaseID string, stmts []Statement) (int64, error)
	Query(ctx context.Context, databaseID, sql string, args ...any) (*ExecutionResult, error)
	Dialect(databaseID string) (Dialect, error)
}
