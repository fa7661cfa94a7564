package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// PoolOptions sizes the connection pool of every registered database.
type PoolOptions struct {
	Size            int           // idle connections kept open
	Overflow        int           // extra connections allowed under load
	Recycle         time.Duration // maximum connection lifetime
	CheckoutTimeout time.Duration // wait for a free slot before failing
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.Size <= 0 {
		o.Size = 5
	}
	if o.Overflow < 0 {
		o.Overflow = 0
	}
	if o.Recycle <= 0 {
		o.Recycle = time.Hour
	}
	if o.CheckoutTimeout <= 0 {
		o.CheckoutTimeout = 30 * time.Second
	}
	return o
}

// Pool is the connection pool of one registered database. Slot checkout is
// bounded by a weighted semaphore so concurrent plans cannot exceed the
// configured capacity.
type Pool struct {
	cfg     domain.DatabaseConfig
	db      *sql.DB
	dialect *Dialect
	slots   *semaphore.Weighted
	timeout time.Duration
}

// DB returns the underlying handle.
func (p *Pool) DB() *sql.DB { return p.db }

// Dialect returns the pool's SQL dialect.
func (p *Pool) Dialect() *Dialect { return p.dialect }

// Config returns the registration of the pool.
func (p *Pool) Config() domain.DatabaseConfig { return p.cfg }

// acquire checks out a slot, waiting at most the pool timeout.
func (p *Pool) acquire(ctx context.Context) (func(), error) {
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.slots.Acquire(wctx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.ExecutionError{
			DatabaseID: p.cfg.ID,
			Message:    fmt.Sprintf("no free connection within %s", p.timeout),
			Err:        err,
		}
	}
	var once sync.Once
	return func() { once.Do(func() { p.slots.Release(1) }) }, nil
}

// Registry holds the pools of all registered databases and the default.
type Registry struct {
	mu        sync.RWMutex
	pools     map[string]*Pool
	order     []string
	defaultID string
	opts      PoolOptions
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts PoolOptions, logger *slog.Logger) *Registry {
	return &Registry{
		pools:  make(map[string]*Pool),
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Register opens and verifies a pool for cfg. The first registered database
// becomes the default.
func (r *Registry) Register(ctx context.Context, cfg domain.DatabaseConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	dialect, err := DialectFor(cfg.Type)
	if err != nil {
		return err
	}

	r.mu.RLock()
	_, exists := r.pools[cfg.ID]
	r.mu.RUnlock()
	if exists {
		return domain.ErrConflict("database %q is already registered", cfg.ID)
	}

	dsn, err := BuildDSN(cfg)
	if err != nil {
		return err
	}
	db, err := sql.Open(driverName(cfg.Type), dsn)
	if err != nil {
		return fmt.Errorf("open %s database %q: %w", cfg.Type, cfg.ID, err)
	}
	capacity := r.opts.Size + r.opts.Overflow
	db.SetMaxOpenConns(capacity)
	db.SetMaxIdleConns(r.opts.Size)
	db.SetConnMaxLifetime(r.opts.Recycle)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("connect to database %q: %w", cfg.ID, err)
	}

	pool := &Pool{
		cfg:     cfg,
		db:      db,
		dialect: dialect,
		slots:   semaphore.NewWeighted(int64(capacity)),
		timeout: r.opts.CheckoutTimeout,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pools[cfg.ID]; exists {
		_ = db.Close()
		return domain.ErrConflict("database %q is already registered", cfg.ID)
	}
	r.pools[cfg.ID] = pool
	r.order = append(r.order, cfg.ID)
	if r.defaultID == "" {
		r.defaultID = cfg.ID
	}
	r.logger.Info("database registered", "database", cfg.ID, "type", cfg.Type, "pool_size", r.opts.Size, "overflow", r.opts.Overflow)
	return nil
}

// Unregister closes and removes a pool. When it was the default, the oldest
// remaining registration takes over.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	pool, ok := r.pools[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotFound("database %q not found", id)
	}
	delete(r.pools, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	if r.defaultID == id {
		r.defaultID = ""
		if len(r.order) > 0 {
			r.defaultID = r.order[0]
		}
	}
	r.mu.Unlock()

	r.logger.Info("database unregistered", "database", id)
	return pool.db.Close()
}

// Get returns the pool for id; an empty id selects the default.
func (r *Registry) Get(id string) (*Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == "" {
		id = r.defaultID
		if id == "" {
			return nil, domain.ErrNotFound("no database is registered")
		}
	}
	pool, ok := r.pools[id]
	if !ok {
		return nil, domain.ErrNotFound("database %q not found", id)
	}
	return pool, nil
}

// Resolve maps an empty id to the default and verifies registration.
func (r *Registry) Resolve(id string) (string, error) {
	pool, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return pool.cfg.ID, nil
}

// SetDefault makes id the default database.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pools[id]; !ok {
		return domain.ErrNotFound("database %q not found", id)
	}
	r.defaultID = id
	return nil
}

// Default returns the default database id, or "".
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// List returns every registration in registration order.
func (r *Registry) List() []domain.DatabaseInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DatabaseInfo, 0, len(r.order))
	for _, id := range r.order {
		cfg := r.pools[id].cfg
		out = append(out, domain.DatabaseInfo{
			ID:        cfg.ID,
			Nickname:  cfg.Nickname,
			Type:      cfg.Type,
			Database:  cfg.Database,
			Host:      cfg.Host,
			IsDefault: id == r.defaultID,
		})
	}
	return out
}

// HealthCheck pings every pool concurrently.
func (r *Registry) HealthCheck(ctx context.Context) []domain.HealthStatus {
	r.mu.RLock()
	pools := make([]*Pool, 0, len(r.order))
	for _, id := range r.order {
		pools = append(pools, r.pools[id])
	}
	r.mu.RUnlock()

	statuses := make([]domain.HealthStatus, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range pools {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, 5*time.Second)
			defer cancel()
			st := domain.HealthStatus{DatabaseID: p.cfg.ID, Healthy: true}
			if err := p.db.PingContext(pctx); err != nil {
				st.Healthy = false
				st.Error = err.Error()
			}
			statuses[i] = st
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

// Close closes every pool.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for id, p := range r.pools {
		if err := p.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %q: %w", id, err)
		}
	}
	r.pools = make(map[string]*Pool)
	r.order = nil
	r.defaultID = ""
	return firstErr
}
