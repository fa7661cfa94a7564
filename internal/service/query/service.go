// Package query orchestrates a question end to end: schema context, Oracle,
// planning, classification, policy, execution, rollback offer and audit.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/planner"
	"github.com/jmanoj0905/natural-language-sql/internal/policy"
	"github.com/jmanoj0905/natural-language-sql/internal/rollback"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// LocalSession is used when a request carries no session.
const LocalSession = "local"

const defaultPlanCacheSize = 1024

// DatabaseResolver maps a database id, possibly empty, to a registered one.
type DatabaseResolver interface {
	Resolve(id string) (string, error)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Databases DatabaseResolver
	Schema    domain.SchemaProvider
	Oracle    domain.SQLOracle
	Planner   *planner.Planner
	Gate      *policy.Gate
	Executor  domain.StatementExecutor
	Rollback  *rollback.Coordinator
	Audit     domain.AuditSink
}

// Options tunes a Service.
type Options struct {
	// PlanCacheSize bounds how many plans are kept for later execution.
	PlanCacheSize int
}

// Service runs question → plan → execution pipelines. Plans are stored in a
// bounded LRU so a pending plan can be confirmed by a later request.
type Service struct {
	deps    Deps
	plans   *lru.Cache[string, *tracked]
	running sync.Map // plan id → context.CancelFunc
	logger  *slog.Logger
}

// tracked guards one plan. The runner mutates steps under mu and readers
// take snapshots.
type tracked struct {
	mu        sync.Mutex
	plan      *domain.QueryPlan
	impact    []Impact
	performer string
}

func (t *tracked) update(fn func()) {
	t.mu.Lock()
	fn()
	t.mu.Unlock()
}

func (t *tracked) snapshot() *domain.QueryPlan {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *t.plan
	cp.Steps = make([]*domain.Step, len(t.plan.Steps))
	for i, s := range t.plan.Steps {
		sc := *s
		cp.Steps[i] = &sc
	}
	return &cp
}

// NewService creates a Service.
func NewService(deps Deps, opts Options, logger *slog.Logger) (*Service, error) {
	size := opts.PlanCacheSize
	if size <= 0 {
		size = defaultPlanCacheSize
	}
	plans, err := lru.New[string, *tracked](size)
	if err != nil {
		return nil, fmt.Errorf("create plan cache: %w", err)
	}
	return &Service{deps: deps, plans: plans, logger: logger.With("component", "query")}, nil
}

// Ask turns a question into a plan and, when auto-execute applies, runs it.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*PlanResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.ErrValidation("question is required")
	}
	dbID, err := s.deps.Databases.Resolve(req.DatabaseID)
	if err != nil {
		return nil, err
	}
	dialect, err := s.deps.Executor.Dialect(dbID)
	if err != nil {
		return nil, err
	}
	tables, err := s.deps.Schema.GetSchema(ctx, dbID)
	if err != nil {
		return nil, fmt.Errorf("load schema of %q: %w", dbID, err)
	}

	mode := modeOf(req.ReadOnly)
	candidates, err := s.deps.Oracle.Generate(ctx, domain.OracleRequest{
		Question: question,
		Mode:     mode,
		Dialect:  string(dialect.Name()),
		Schema:   tables,
	})
	if err != nil {
		return nil, err
	}

	plan, err := s.deps.Planner.Plan(candidates, dbID, mode)
	if err != nil {
		return nil, err
	}
	plan.Question = question
	overrideAutoExecute(plan, req.Execute)
	s.deps.Gate.AuthorizePlan(plan)

	resp, err := s.submit(ctx, plan, tables)
	if err != nil {
		return nil, err
	}
	if req.IncludeSchema {
		resp.Schema = tables
	}
	return resp, nil
}

// Direct plans a single caller-supplied statement. A statement the gate
// denies is reported as a *domain.PolicyDeniedError.
func (s *Service) Direct(ctx context.Context, req DirectRequest) (*PlanResponse, error) {
	stmt := sqlguard.TrimTerminator(req.SQL)
	if stmt == "" {
		return nil, domain.ErrValidation("sql is required")
	}
	if sqlguard.HasMultipleStatements(stmt) {
		return nil, domain.ErrValidation("only one statement is allowed")
	}
	dbID, err := s.deps.Databases.Resolve(req.DatabaseID)
	if err != nil {
		return nil, err
	}

	plan, err := s.deps.Planner.Plan([]domain.Candidate{{SQL: stmt, Explanation: "Direct SQL."}}, dbID, modeOf(req.ReadOnly))
	if err != nil {
		return nil, err
	}
	overrideAutoExecute(plan, req.Execute)
	if denied := s.deps.Gate.AuthorizePlan(plan); denied != nil {
		s.logger.Info("direct statement denied", "database", dbID, "reason", denied.Reason)
		return nil, denied
	}
	return s.submit(ctx, plan, nil)
}

// submit previews, stores and, when allowed, runs a freshly authorized plan.
// tables may be nil, in which case the preview loads the schema itself.
func (s *Service) submit(ctx context.Context, plan *domain.QueryPlan, tables []domain.Table) (*PlanResponse, error) {
	sess := sessionOf(ctx)
	plan.SessionID = sess.ID

	t := &tracked{plan: plan, performer: sess.Performer}
	t.impact = s.preview(ctx, plan, tables)
	s.plans.Add(plan.ID, t)

	s.logger.Info("plan created",
		"plan", plan.ID, "database", plan.DatabaseID, "mode", plan.Mode,
		"auto_execute", plan.AutoExecute, "steps", len(plan.Steps))

	if plan.AutoExecute && !awaiting(plan) {
		runCtx, finish, err := s.start(ctx, t)
		if err != nil {
			return nil, err
		}
		defer finish()
		return s.run(runCtx, t, nil), nil
	}
	return s.respond(t), nil
}

// ExecutePlan runs a stored plan once, with the named steps confirmed.
// Awaiting steps left unconfirmed stay pending and their dependents are
// skipped.
func (s *Service) ExecutePlan(ctx context.Context, planID string, opts ExecuteOptions) (*PlanResponse, error) {
	t, err := s.lookup(ctx, planID)
	if err != nil {
		return nil, err
	}

	confirmed := make(map[int]bool)
	var verr error
	t.update(func() {
		if opts.ConfirmAll {
			for _, st := range t.plan.Steps {
				if st.Status == domain.StepAwaitingConfirmation {
					confirmed[st.Number] = true
				}
			}
		}
		for _, n := range opts.Confirm {
			st := t.plan.Step(n)
			switch {
			case st == nil:
				verr = domain.ErrValidation("plan %s has no step %d", planID, n)
				return
			case st.Status == domain.StepDenied:
				verr = &domain.PolicyDeniedError{Step: n, Reason: st.Error}
				return
			}
			confirmed[n] = true
		}
	})
	if verr != nil {
		return nil, verr
	}

	runCtx, finish, err := s.start(ctx, t)
	if err != nil {
		return nil, err
	}
	defer finish()
	return s.run(runCtx, t, confirmed), nil
}

// GetPlan returns a stored plan with its current step states.
func (s *Service) GetPlan(ctx context.Context, planID string) (*PlanResponse, error) {
	t, err := s.lookup(ctx, planID)
	if err != nil {
		return nil, err
	}
	return s.respond(t), nil
}

// Cancel stops a plan before its next step. A running step resolves its own
// transaction first. A plan that has not started is canceled outright and can
// no longer be executed.
func (s *Service) Cancel(ctx context.Context, planID string) error {
	t, err := s.lookup(ctx, planID)
	if err != nil {
		return err
	}
	var cerr error
	requested := false
	t.update(func() {
		if cancel, ok := s.running.Load(planID); ok {
			cancel.(context.CancelFunc)()
			requested = true
			return
		}
		if t.plan.Started {
			cerr = domain.ErrConflict("plan %s has already finished", planID)
			return
		}
		t.plan.Started = true
		cancelRemaining(t.plan, "plan canceled before execution")
	})
	switch {
	case requested:
		s.logger.Info("plan cancellation requested", "plan", planID)
	case cerr == nil:
		s.logger.Info("plan canceled", "plan", planID)
	}
	return cerr
}

func (s *Service) lookup(ctx context.Context, planID string) (*tracked, error) {
	t, ok := s.plans.Get(planID)
	if !ok {
		return nil, domain.ErrNotFound("plan %s not found", planID)
	}
	if t.plan.SessionID != "" && t.plan.SessionID != sessionOf(ctx).ID {
		return nil, domain.ErrNotFound("plan %s not found", planID)
	}
	return t, nil
}

// start marks the plan as started and registers its cancel func in the same
// critical section, failing when the plan already ran. The returned context
// governs the run; finish unregisters it and must be called once the run ends.
func (s *Service) start(ctx context.Context, t *tracked) (context.Context, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	var err error
	t.update(func() {
		if t.plan.Started {
			err = domain.ErrConflict("plan %s has already been executed", t.plan.ID)
			return
		}
		t.plan.Started = true
		s.running.Store(t.plan.ID, cancel)
	})
	if err != nil {
		cancel()
		return nil, nil, err
	}
	finish := func() {
		t.update(func() { s.running.Delete(t.plan.ID) })
		cancel()
	}
	return ctx, finish, nil
}

func (s *Service) respond(t *tracked) *PlanResponse {
	plan := t.snapshot()
	resp := &PlanResponse{
		Plan:     plan,
		Warnings: policy.Warnings(plan),
		Summary:  summarize(plan),
		Impact:   t.impact,
	}
	if s.deps.Rollback != nil && plan.SessionID != "" {
		if rec, ok := s.deps.Rollback.Get(plan.SessionID); ok && rec.PlanID == plan.ID {
			resp.Rollback = s.handle(rec)
		}
	}
	return resp
}

func overrideAutoExecute(plan *domain.QueryPlan, execute *bool) {
	if execute != nil {
		plan.AutoExecute = *execute
	}
}

func awaiting(plan *domain.QueryPlan) bool {
	for _, st := range plan.Steps {
		if st.Status == domain.StepAwaitingConfirmation {
			return true
		}
	}
	return false
}

func modeOf(readOnly bool) domain.Mode {
	if readOnly {
		return domain.ModeReadOnly
	}
	return domain.ModeWrite
}

func sessionOf(ctx context.Context) domain.Session {
	sess, _ := domain.SessionFromContext(ctx)
	if sess.ID == "" {
		sess.ID = LocalSession
	}
	if sess.Performer == "" {
		sess.Performer = domain.DefaultPerformer
	}
	return sess
}
