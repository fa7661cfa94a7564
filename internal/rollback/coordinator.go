// Package rollback keeps the single live undo offer of each session and turns
// it into compensating statements on request.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	cache "github.com/go-pkgz/expirable-cache"
	"github.com/robfig/cron/v3"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// Options configures a Coordinator.
type Options struct {
	// Window is how long a record stays available. Default 30s.
	Window time.Duration
	// Tick is the countdown granularity. Default 1s.
	Tick time.Duration
	// SweepSchedule is the cron spec of the expiry sweep. Default "@every 1s".
	SweepSchedule string
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 30 * time.Second
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.SweepSchedule == "" {
		o.SweepSchedule = "@every 1s"
	}
	return o
}

// entry is a cached record plus the signal closed when it is discarded.
type entry struct {
	record   *domain.RollbackRecord
	done     chan struct{}
	once     sync.Once
	inFlight bool
}

func (e *entry) discard() { e.once.Do(func() { close(e.done) }) }

// Coordinator owns the rollback records of all sessions.
type Coordinator struct {
	records  cache.Cache
	executor domain.StatementExecutor
	schema   domain.SchemaProvider
	cron     *cron.Cron
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex // serializes read-modify-write of a session's entry
}

// New creates a Coordinator. schema may be nil, in which case key columns
// fall back to a column named id.
func New(executor domain.StatementExecutor, schema domain.SchemaProvider, opts Options, logger *slog.Logger) (*Coordinator, error) {
	opts = opts.withDefaults()
	c := &Coordinator{
		executor: executor,
		schema:   schema,
		cron:     cron.New(),
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
	records, err := cache.NewCache(
		cache.TTL(opts.Window),
		cache.OnEvicted(func(_ string, v interface{}) {
			if e, ok := v.(*entry); ok {
				e.discard()
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create rollback store: %w", err)
	}
	c.records = records
	if _, err := c.cron.AddFunc(opts.SweepSchedule, c.sweep); err != nil {
		return nil, fmt.Errorf("schedule rollback sweep %q: %w", opts.SweepSchedule, err)
	}
	return c, nil
}

// Start begins the expiry sweep.
func (c *Coordinator) Start() {
	c.cron.Start()
	c.logger.Info("rollback sweep started", "window", c.opts.Window, "schedule", c.opts.SweepSchedule)
}

// Stop halts the expiry sweep and waits for a running sweep to finish.
func (c *Coordinator) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info("rollback sweep stopped")
}

// Window returns the configured rollback window.
func (c *Coordinator) Window() time.Duration { return c.opts.Window }

// Offer records the compensable writes of an executed plan as the session's
// live rollback record, replacing any previous one. It returns false when
// nothing qualifies: read-only plans, plans that ran a structural change, and
// plans whose writes touched no rows.
func (c *Coordinator) Offer(sessionID string, plan *domain.QueryPlan, performer string) (*domain.RollbackRecord, bool) {
	if plan.Mode != domain.ModeWrite {
		return nil, false
	}
	var entries []domain.RollbackEntry
	for _, s := range plan.Steps {
		if s.Status != domain.StepSucceeded || !s.Destructive() || s.Result == nil {
			continue
		}
		for _, f := range s.Findings {
			if f.Operation.Structural() {
				c.logger.Info("no rollback offered: plan ran a structural change", "plan", plan.ID, "step", s.Number)
				return nil, false
			}
		}
		if s.Result.RowsAffected == 0 {
			continue
		}
		op := sqlguard.PrimaryOperation(boundSQL(s), s.Findings)
		if op == "" {
			continue
		}
		table := ""
		if s.Result.Image != nil {
			table = s.Result.Image.Table
		}
		entries = append(entries, domain.RollbackEntry{
			StepNumber:   s.Number,
			SQL:          boundSQL(s),
			Operation:    op,
			Table:        table,
			RowsAffected: s.Result.RowsAffected,
			Image:        s.Result.Image,
		})
	}
	if len(entries) == 0 {
		return nil, false
	}

	now := c.now().UTC()
	rec := &domain.RollbackRecord{
		ID:         domain.NewID(),
		SessionID:  sessionID,
		PlanID:     plan.ID,
		DatabaseID: plan.DatabaseID,
		Question:   plan.Question,
		Performer:  performer,
		Entries:    entries,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.opts.Window),
	}

	c.mu.Lock()
	if prev, ok := c.lookup(sessionID); ok {
		prev.discard()
	}
	c.records.Set(sessionID, &entry{record: rec, done: make(chan struct{})}, c.opts.Window)
	c.mu.Unlock()

	c.logger.Info("rollback offered", "session", sessionID, "record", rec.ID, "plan", plan.ID, "entries", len(entries), "expires_at", rec.ExpiresAt)
	return rec, true
}

// Get returns the live record of a session.
func (c *Coordinator) Get(sessionID string) (*domain.RollbackRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(sessionID)
	if !ok {
		return nil, false
	}
	return e.record, true
}

// Remaining returns the time left before rec expires.
func (c *Coordinator) Remaining(rec *domain.RollbackRecord) time.Duration {
	return rec.Remaining(c.now())
}

// Countdown emits the number of whole ticks left in the record's window,
// starting with the current value and ending with 0. The channel closes after
// 0, when the record is discarded, or when ctx ends.
func (c *Coordinator) Countdown(ctx context.Context, sessionID, recordID string) (<-chan int, error) {
	c.mu.Lock()
	e, err := c.match(sessionID, recordID)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan int)
	go func() {
		defer close(out)
		ticker := time.NewTicker(c.opts.Tick)
		defer ticker.Stop()
		for {
			left := c.ticksLeft(e.record)
			select {
			case out <- left:
			case <-e.done:
				return
			case <-ctx.Done():
				return
			}
			if left == 0 {
				return
			}
			select {
			case <-ticker.C:
			case <-e.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Coordinator) ticksLeft(rec *domain.RollbackRecord) int {
	rem := rec.Remaining(c.now())
	return int(math.Ceil(float64(rem) / float64(c.opts.Tick)))
}

// Rollback runs the compensation of the session's live record. The record is
// removed on success and kept on failure so the caller may retry inside the
// window. Expired, unknown and non-compensable records yield a
// *domain.RollbackUnavailableError.
func (c *Coordinator) Rollback(ctx context.Context, sessionID, recordID string) (*domain.RollbackOutcome, error) {
	c.mu.Lock()
	e, err := c.match(sessionID, recordID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if e.inFlight {
		c.mu.Unlock()
		return nil, domain.ErrConflict("rollback %s is already running", recordID)
	}
	e.inFlight = true
	c.mu.Unlock()

	outcome, err := c.compensate(ctx, e.record)

	c.mu.Lock()
	defer c.mu.Unlock()
	e.inFlight = false
	if err != nil {
		c.logger.Warn("rollback failed", "session", sessionID, "record", recordID, "error", err)
		return nil, err
	}
	c.remove(sessionID, e)
	c.logger.Info("rollback completed", "session", sessionID, "record", recordID, "statements", outcome.Statements, "rows", outcome.RowsRestored)
	return outcome, nil
}

func (c *Coordinator) compensate(ctx context.Context, rec *domain.RollbackRecord) (*domain.RollbackOutcome, error) {
	dialect, err := c.executor.Dialect(rec.DatabaseID)
	if err != nil {
		return nil, domain.ErrRollbackUnavailable("database %q is no longer registered", rec.DatabaseID)
	}
	b := &builder{dialect: dialect, keys: c.keyResolver(ctx, rec.DatabaseID)}

	var stmts []domain.Statement
	entries := slices.Clone(rec.Entries)
	slices.Reverse(entries)
	for _, en := range entries {
		s, err := b.build(en)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s...)
	}
	if len(stmts) == 0 {
		return nil, domain.ErrRollbackUnavailable("nothing to roll back")
	}

	n, err := c.executor.ExecuteCompensation(ctx, rec.DatabaseID, stmts)
	if err != nil {
		return nil, err
	}
	return &domain.RollbackOutcome{RecordID: rec.ID, Statements: len(stmts), RowsRestored: n}, nil
}

// Keep discards the record, confirming the changes.
func (c *Coordinator) Keep(sessionID, recordID string) error {
	return c.drop(sessionID, recordID, "kept")
}

// Expire discards the record as if its window had closed.
func (c *Coordinator) Expire(sessionID, recordID string) error {
	return c.drop(sessionID, recordID, "expired")
}

func (c *Coordinator) drop(sessionID, recordID, why string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.match(sessionID, recordID)
	if err != nil {
		return err
	}
	if e.inFlight {
		return domain.ErrConflict("rollback %s is running", recordID)
	}
	c.remove(sessionID, e)
	c.logger.Info("rollback record discarded", "session", sessionID, "record", recordID, "reason", why)
	return nil
}

// sweep drops every record whose window has closed.
func (c *Coordinator) sweep() {
	c.records.DeleteExpired()

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, key := range c.records.Keys() {
		e, ok := c.lookup(key)
		if ok && !e.inFlight && e.record.Expired(now) {
			c.remove(key, e)
			c.logger.Debug("rollback record expired", "session", key, "record", e.record.ID)
		}
	}
}

// lookup returns the cached entry of a session. Callers hold c.mu.
func (c *Coordinator) lookup(sessionID string) (*entry, bool) {
	v, ok := c.records.Peek(sessionID)
	if !ok {
		return nil, false
	}
	e, ok := v.(*entry)
	return e, ok
}

// live is lookup plus a hard expiry check. Callers hold c.mu.
func (c *Coordinator) live(sessionID string) (*entry, bool) {
	e, ok := c.lookup(sessionID)
	if !ok {
		return nil, false
	}
	if e.record.Expired(c.now()) && !e.inFlight {
		c.remove(sessionID, e)
		return nil, false
	}
	return e, true
}

// match finds the live entry of a session and checks its id. Callers hold c.mu.
func (c *Coordinator) match(sessionID, recordID string) (*entry, error) {
	e, ok := c.lookup(sessionID)
	if !ok || (recordID != "" && e.record.ID != recordID) {
		return nil, domain.ErrRollbackUnavailable("rollback record %s is not available", recordID)
	}
	if e.record.Expired(c.now()) && !e.inFlight {
		c.remove(sessionID, e)
		return nil, domain.ErrRollbackUnavailable("rollback window expired")
	}
	return e, nil
}

func (c *Coordinator) remove(sessionID string, e *entry) {
	if cur, ok := c.lookup(sessionID); ok && cur == e {
		c.records.Invalidate(sessionID)
	}
	e.discard()
}

func boundSQL(s *domain.Step) string {
	if s.BoundSQL != "" {
		return s.BoundSQL
	}
	return s.SQL
}
