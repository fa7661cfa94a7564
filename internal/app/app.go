// Package app provides application-level wiring and dependency injection
// for the natural-language SQL server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmanoj0905/natural-language-sql/internal/api"
	"github.com/jmanoj0905/natural-language-sql/internal/config"
	"github.com/jmanoj0905/natural-language-sql/internal/crypto"
	"github.com/jmanoj0905/natural-language-sql/internal/db/repository"
	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/engine"
	"github.com/jmanoj0905/natural-language-sql/internal/middleware"
	"github.com/jmanoj0905/natural-language-sql/internal/oracle"
	"github.com/jmanoj0905/natural-language-sql/internal/planner"
	"github.com/jmanoj0905/natural-language-sql/internal/policy"
	"github.com/jmanoj0905/natural-language-sql/internal/rollback"
	"github.com/jmanoj0905/natural-language-sql/internal/schema"
	"github.com/jmanoj0905/natural-language-sql/internal/service/query"
)

const schemaSampleRows = 3

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create itself:
// the audit store handles, config, and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
	Version string
	// Oracle replaces the Ollama client when set.
	Oracle domain.SQLOracle
}

// App holds the fully-wired application.
type App struct {
	Registry *engine.Registry
	Executor *engine.Executor
	Schema   *schema.Inspector
	Rollback *rollback.Coordinator
	Audit    *repository.AuditRepo
	Query    *query.Service
	Handler  *api.Handler
}

// New wires the pipeline from the provided deps and registers the databases
// named in the databases file. A database that cannot be reached at startup
// is logged and skipped.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger

	var sealer *crypto.Sealer
	if cfg.EncryptionKey != "" {
		s, err := crypto.NewSealer(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("DB_ENCRYPTION_KEY: %w", err)
		}
		sealer = s
	}

	// === Target databases ===
	registry := engine.NewRegistry(engine.PoolOptions{
		Size:            cfg.DBPoolSize,
		Overflow:        cfg.DBMaxOverflow,
		Recycle:         cfg.DBPoolRecycle,
		CheckoutTimeout: cfg.DBPoolTimeout,
	}, logger.With("component", "registry"))
	if err := registerDatabases(ctx, registry, cfg, sealer, logger); err != nil {
		_ = registry.Close()
		return nil, err
	}

	executor := engine.NewExecutor(registry, engine.ExecutorOptions{
		QueryTimeout:   cfg.QueryTimeout,
		MaxCaptureRows: cfg.RollbackMaxRows,
	}, logger.With("component", "executor"))

	inspector := schema.NewInspector(executor, schema.Options{
		CacheEnabled: cfg.EnableSchemaCache,
		CacheTTL:     cfg.SchemaCacheTTL,
		SampleRows:   schemaSampleRows,
	}, logger)

	// === Oracle ===
	var ollama *oracle.Ollama
	sqlOracle := deps.Oracle
	if sqlOracle == nil {
		ollama = oracle.NewOllama(oracle.Options{
			BaseURL:     cfg.OllamaBaseURL,
			Model:       cfg.OllamaModel,
			Temperature: cfg.OllamaTemperature,
			Timeout:     cfg.OllamaTimeout,
			MaxAttempts: uint(max(cfg.OracleMaxAttempts, 1)), //nolint:gosec // clamped positive
			MaxLimit:    cfg.MaxQueryResults,
		}, logger)
		sqlOracle = ollama
	}

	// === Rollback + audit ===
	coordinator, err := rollback.New(executor, inspector, rollback.Options{
		Window: cfg.RollbackWindow,
	}, logger.With("component", "rollback"))
	if err != nil {
		_ = registry.Close()
		return nil, err
	}
	auditRepo := repository.NewAuditRepo(deps.WriteDB, deps.ReadDB)

	// === Orchestration ===
	querySvc, err := query.NewService(query.Deps{
		Databases: registry,
		Schema:    inspector,
		Oracle:    sqlOracle,
		Planner:   planner.New(planner.Options{DefaultLimit: cfg.DefaultQueryLimit, MaxLimit: cfg.MaxQueryResults}),
		Gate:      policy.New(policy.Options{StrictSQL: cfg.StrictSQL}),
		Executor:  executor,
		Rollback:  coordinator,
		Audit:     auditRepo,
	}, query.Options{PlanCacheSize: cfg.PlanCacheSize}, logger)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	hdeps := api.HandlerDeps{
		Query:     querySvc,
		Databases: registry,
		Schema:    inspector,
		Audit:     auditRepo,
		Version:   deps.Version,
		Logger:    logger,
	}
	if ollama != nil {
		hdeps.Oracle = ollama
	}
	if sealer != nil {
		hdeps.Sealer = sealer
	}

	return &App{
		Registry: registry,
		Executor: executor,
		Schema:   inspector,
		Rollback: coordinator,
		Audit:    auditRepo,
		Query:    querySvc,
		Handler:  api.NewHandler(hdeps),
	}, nil
}

// Router builds the HTTP handler. ctx bounds background middleware work.
func (a *App) Router(ctx context.Context, cfg *config.Config, logger *slog.Logger) http.Handler {
	return api.NewRouter(ctx, a.Handler, api.RouterConfig{
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:             logger,
	})
}

// Start begins background work.
func (a *App) Start() {
	a.Rollback.Start()
}

// Close stops background work and closes every target database pool.
func (a *App) Close() error {
	a.Rollback.Stop()
	return a.Registry.Close()
}

func registerDatabases(ctx context.Context, reg *engine.Registry, cfg *config.Config, sealer *crypto.Sealer, logger *slog.Logger) error {
	if cfg.DatabasesFile == "" {
		return nil
	}
	file, err := config.LoadDatabases(cfg.DatabasesFile, sealer)
	if err != nil {
		return err
	}
	for _, dbCfg := range file.Databases {
		if err := reg.Register(ctx, dbCfg); err != nil {
			logger.Warn("database not registered", "database", dbCfg.ID, "type", dbCfg.Type, "error", err)
		}
	}

	def := file.Default
	if cfg.DefaultDatabase != "" {
		def = cfg.DefaultDatabase
	}
	if def != "" {
		if err := reg.SetDefault(def); err != nil {
			logger.Warn("default database unavailable", "database", def, "error", err)
		}
	}
	logger.Info("databases registered", "count", len(reg.List()), "default", reg.Default())
	return nil
}
