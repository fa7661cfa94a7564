package api

import (
	"context"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/service/query"
)

type mockQueryService struct {
	askFn            func(ctx context.Context, req query.AskRequest) (*query.PlanResponse, error)
	directFn         func(ctx context.Context, req query.DirectRequest) (*query.PlanResponse, error)
	executePlanFn    func(ctx context.Context, planID string, opts query.ExecuteOptions) (*query.PlanResponse, error)
	getPlanFn        func(ctx context.Context, planID string) (*query.PlanResponse, error)
	cancelFn         func(ctx context.Context, planID string) error
	rollbackStatusFn func(ctx context.Context) (*query.RollbackHandle, error)
	rollbackFn       func(ctx context.Context, recordID string) (*domain.RollbackOutcome, error)
	keepFn           func(ctx context.Context, recordID string) error
	countdownFn      func(ctx context.Context, recordID string) (<-chan int, error)
}

func (m *mockQueryService) Ask(ctx context.Context, req query.AskRequest) (*query.PlanResponse, error) {
	if m.askFn == nil {
		panic("mockQueryService.Ask called but not configured")
	}
	return m.askFn(ctx, req)
}

func (m *mockQueryService) Direct(ctx context.Context, req query.DirectRequest) (*query.PlanResponse, error) {
	if m.directFn == nil {
		panic("mockQueryService.Direct called but not configured")
	}
	return m.directFn(ctx, req)
}

func (m *mockQueryService) ExecutePlan(ctx context.Context, planID string, opts query.ExecuteOptions) (*query.PlanResponse, error) {
	if m.executePlanFn == nil {
		panic("mockQueryService.ExecutePlan called but not configured")
	}
	return m.executePlanFn(ctx, planID, opts)
}

func (m *mockQueryService) GetPlan(ctx context.Context, planID string) (*query.PlanResponse, error) {
	if m.getPlanFn == nil {
		panic("mockQueryService.GetPlan called but not configured")
	}
	return m.getPlanFn(ctx, planID)
}

func (m *mockQueryService) Cancel(ctx context.Context, planID string) error {
	if m.cancelFn == nil {
		panic("mockQueryService.Cancel called but not configured")
	}
	return m.cancelFn(ctx, planID)
}

func (m *mockQueryService) RollbackStatus(ctx context.Context) (*query.RollbackHandle, error) {
	if m.rollbackStatusFn == nil {
		panic("mockQueryService.RollbackStatus called but not configured")
	}
	return m.rollbackStatusFn(ctx)
}

func (m *mockQueryService) Rollback(ctx context.Context, recordID string) (*domain.RollbackOutcome, error) {
	if m.rollbackFn == nil {
		panic("mockQueryService.Rollback called but not configured")
	}
	return m.rollbackFn(ctx, recordID)
}

func (m *mockQueryService) Keep(ctx context.Context, recordID string) error {
	if m.keepFn == nil {
		panic("mockQueryService.Keep called but not configured")
	}
	return m.keepFn(ctx, recordID)
}

func (m *mockQueryService) Countdown(ctx context.Context, recordID string) (<-chan int, error) {
	if m.countdownFn == nil {
		panic("mockQueryService.Countdown called but not configured")
	}
	return m.countdownFn(ctx, recordID)
}

type mockRegistry struct {
	registerFn    func(ctx context.Context, cfg domain.DatabaseConfig) error
	unregisterFn  func(id string) error
	setDefaultFn  func(id string) error
	listFn        func() []domain.DatabaseInfo
	healthCheckFn func(ctx context.Context) []domain.HealthStatus
}

func (m *mockRegistry) Register(ctx context.Context, cfg domain.DatabaseConfig) error {
	if m.registerFn == nil {
		panic("mockRegistry.Register called but not configured")
	}
	return m.registerFn(ctx, cfg)
}

func (m *mockRegistry) Unregister(id string) error {
	if m.unregisterFn == nil {
		panic("mockRegistry.Unregister called but not configured")
	}
	return m.unregisterFn(id)
}

func (m *mockRegistry) SetDefault(id string) error {
	if m.setDefaultFn == nil {
		panic("mockRegistry.SetDefault called but not configured")
	}
	return m.setDefaultFn(id)
}

func (m *mockRegistry) List() []domain.DatabaseInfo {
	if m.listFn == nil {
		panic("mockRegistry.List called but not configured")
	}
	return m.listFn()
}

func (m *mockRegistry) HealthCheck(ctx context.Context) []domain.HealthStatus {
	if m.healthCheckFn == nil {
		panic("mockRegistry.HealthCheck called but not configured")
	}
	return m.healthCheckFn(ctx)
}

type mockSchema struct {
	getSchemaFn func(ctx context.Context, databaseID string) ([]domain.Table, error)
	invalidated []string
}

func (m *mockSchema) GetSchema(ctx context.Context, databaseID string) ([]domain.Table, error) {
	if m.getSchemaFn == nil {
		panic("mockSchema.GetSchema called but not configured")
	}
	return m.getSchemaFn(ctx, databaseID)
}

func (m *mockSchema) Invalidate(databaseID string) {
	m.invalidated = append(m.invalidated, databaseID)
}

type mockAuditLister struct {
	listFn func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error)
}

func (m *mockAuditLister) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error) {
	if m.listFn == nil {
		panic("mockAuditLister.List called but not configured")
	}
	return m.listFn(ctx, filter)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type unsealerFunc func(v string) (string, error)

func (f unsealerFunc) Open(v string) (string, error) { return f(v) }
