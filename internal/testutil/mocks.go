// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sync"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// === Oracle Mock ===

// MockOracle implements domain.SQLOracle for testing.
type MockOracle struct {
	GenerateFn func(ctx context.Context, req domain.OracleRequest) ([]domain.Candidate, error)

	mu       sync.Mutex
	Requests []domain.OracleRequest
}

// Generate implements the interface method for testing.
func (m *MockOracle) Generate(ctx context.Context, req domain.OracleRequest) ([]domain.Candidate, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	panic("unexpected call to MockOracle.Generate")
}

// Answer returns a GenerateFn that always yields the given statements.
func Answer(sqls ...string) func(context.Context, domain.OracleRequest) ([]domain.Candidate, error) {
	return func(context.Context, domain.OracleRequest) ([]domain.Candidate, error) {
		out := make([]domain.Candidate, len(sqls))
		for i, s := range sqls {
			out[i] = domain.Candidate{SQL: s, Explanation: "generated"}
		}
		return out, nil
	}
}

// === Schema Provider Mock ===

// MockSchemaProvider implements domain.SchemaProvider for testing.
type MockSchemaProvider struct {
	GetSchemaFn func(ctx context.Context, databaseID string) ([]domain.Table, error)
}

// GetSchema implements the interface method for testing.
func (m *MockSchemaProvider) GetSchema(ctx context.Context, databaseID string) ([]domain.Table, error) {
	if m.GetSchemaFn != nil {
		return m.GetSchemaFn(ctx, databaseID)
	}
	panic("unexpected call to MockSchemaProvider.GetSchema")
}

// StaticSchema returns a GetSchemaFn that always yields tables.
func StaticSchema(tables ...domain.Table) func(context.Context, string) ([]domain.Table, error) {
	return func(context.Context, string) ([]domain.Table, error) {
		return tables, nil
	}
}

// === Audit Repository Mock ===

// MockAuditRepo implements domain.AuditRepository for testing.
type MockAuditRepo struct {
	AppendFn func(ctx context.Context, rec *domain.AuditRecord) error
	ListFn   func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error)

	mu      sync.Mutex
	Records []*domain.AuditRecord // collected records for assertions
}

// Append implements the interface method for testing. Records are collected
// unless AppendFn returns an error.
func (m *MockAuditRepo) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if m.AppendFn != nil {
		if err := m.AppendFn(ctx, rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return nil
}

// List implements the interface method for testing.
func (m *MockAuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, filter)
	}
	panic("unexpected call to MockAuditRepo.List")
}

// Snapshot returns a copy of the collected records.
func (m *MockAuditRepo) Snapshot() []*domain.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.AuditRecord, len(m.Records))
	copy(out, m.Records)
	return out
}

// HasOperation returns true if any collected record has the given operation type.
func (m *MockAuditRepo) HasOperation(op string) bool {
	for _, r := range m.Snapshot() {
		if r.OperationType == op {
			return true
		}
	}
	return false
}

// === Statement Executor Mock ===

// MockExecutor implements domain.StatementExecutor for testing.
type MockExecutor struct {
	ExecuteFn             func(ctx context.Context, databaseID, sql string, opts domain.ExecOptions) (*domain.ExecutionResult, error)
	ExecuteCompensationFn func(ctx context.Context, databaseID string, stmts []domain.Statement) (int64, error)
	QueryFn               func(ctx context.Context, databaseID, sql string, args ...any) (*domain.ExecutionResult, error)
	DialectFn             func(databaseID string) (domain.Dialect, error)
}

// Execute implements the interface method for testing.
func (m *MockExecutor) Execute(ctx context.Context, databaseID, sql string, opts domain.ExecOptions) (*domain.ExecutionResult, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, databaseID, sql, opts)
	}
	panic("unexpected call to MockExecutor.Execute")
}

// ExecuteCompensation implements the interface method for testing.
func (m *MockExecutor) ExecuteCompensation(ctx context.Context, databaseID string, stmts []domain.Statement) (int64, error) {
	if m.ExecuteCompensationFn != nil {
		return m.ExecuteCompensationFn(ctx, databaseID, stmts)
	}
	panic("unexpected call to MockExecutor.ExecuteCompensation")
}

// Query implements the interface method for testing.
func (m *MockExecutor) Query(ctx context.Context, databaseID, sql string, args ...any) (*domain.ExecutionResult, error) {
	if m.QueryFn != nil {
		return m.QueryFn(ctx, databaseID, sql, args...)
	}
	panic("unexpected call to MockExecutor.Query")
}

// Dialect implements the interface method for testing.
func (m *MockExecutor) Dialect(databaseID string) (domain.Dialect, error) {
	if m.DialectFn != nil {
		return m.DialectFn(databaseID)
	}
	panic("unexpected call to MockExecutor.Dialect")
}

// Compile-time interface checks.
var (
	_ domain.SQLOracle         = (*MockOracle)(nil)
	_ domain.SchemaProvider    = (*MockSchemaProvider)(nil)
	_ domain.AuditRepository   = (*MockAuditRepo)(nil)
	_ domain.StatementExecutor = (*MockExecutor)(nil)
)
