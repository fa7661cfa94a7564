// Package api exposes the query engine over HTTP.
package api

import (
	"context"
	"log/slog"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/service/query"
)

// QueryService is the orchestration surface the handlers drive.
type QueryService interface {
	Ask(ctx context.Context, req query.AskRequest) (*query.PlanResponse, error)
	Direct(ctx context.Context, req query.DirectRequest) (*query.PlanResponse, error)
	ExecutePlan(ctx context.Context, planID string, opts query.ExecuteOptions) (*query.PlanResponse, error)
	GetPlan(ctx context.Context, planID string) (*query.PlanResponse, error)
	Cancel(ctx context.Context, planID string) error
	RollbackStatus(ctx context.Context) (*query.RollbackHandle, error)
	Rollback(ctx context.Context, recordID string) (*domain.RollbackOutcome, error)
	Keep(ctx context.Context, recordID string) error
	Countdown(ctx context.Context, recordID string) (<-chan int, error)
}

// DatabaseRegistry manages the set of target databases.
type DatabaseRegistry interface {
	Register(ctx context.Context, cfg domain.DatabaseConfig) error
	Unregister(id string) error
	SetDefault(id string) error
	List() []domain.DatabaseInfo
	HealthCheck(ctx context.Context) []domain.HealthStatus
}

// SchemaService serves and invalidates cached schema metadata.
type SchemaService interface {
	GetSchema(ctx context.Context, databaseID string) ([]domain.Table, error)
	Invalidate(databaseID string)
}

// AuditLister lists audit records.
type AuditLister interface {
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Unsealer decrypts sealed secrets.
type Unsealer interface {
	Open(v string) (string, error)
}

// HandlerDeps holds everything a Handler needs. Oracle and Sealer may be nil.
type HandlerDeps struct {
	Query     QueryService
	Databases DatabaseRegistry
	Schema    SchemaService
	Audit     AuditLister
	Oracle    Pinger
	Sealer    Unsealer
	Version   string
	Logger    *slog.Logger
}

// Handler implements the HTTP endpoints.
type Handler struct {
	query     QueryService
	databases DatabaseRegistry
	schema    SchemaService
	audit     AuditLister
	oracle    Pinger
	sealer    Unsealer
	version   string
	logger    *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		query:     deps.Query,
		databases: deps.Databases,
		schema:    deps.Schema,
		audit:     deps.Audit,
		oracle:    deps.Oracle,
		sealer:    deps.Sealer,
		version:   deps.Version,
		logger:    logger.With("component", "api"),
	}
}
