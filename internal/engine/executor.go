// Package engine manages connections to the target databases and executes
// plan steps against them.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// ExecutorOptions configures statement execution.
type ExecutorOptions struct {
	// QueryTimeout bounds every statement; the default is 30s.
	QueryTimeout time.Duration
	// MaxCaptureRows bounds the row image captured for compensation.
	MaxCaptureRows int
}

// Executor runs statements on registered databases. Each statement runs in
// its own transaction which commits as soon as the statement completes.
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
	logger   *slog.Logger
}

// NewExecutor creates an Executor over reg.
func NewExecutor(reg *Registry, opts ExecutorOptions, logger *slog.Logger) *Executor {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 30 * time.Second
	}
	if opts.MaxCaptureRows <= 0 {
		opts.MaxCaptureRows = 1000
	}
	return &Executor{registry: reg, opts: opts, logger: logger}
}

// Dialect returns the dialect of a registered database.
func (e *Executor) Dialect(databaseID string) (domain.Dialect, error) {
	pool, err := e.registry.Get(databaseID)
	if err != nil {
		return nil, err
	}
	return pool.dialect, nil
}

// Execute runs one statement. Reads return their rows; writes return the
// affected row count and, when opts.Capture is set, the row image needed to
// compensate them. A failure rolls the transaction back and is reported as a
// *domain.ExecutionError; nothing is retried. With opts.ReadOnly anything but
// a plain read is refused with a *domain.PolicyDeniedError before it reaches
// the database.
func (e *Executor) Execute(ctx context.Context, databaseID, sqlText string, opts domain.ExecOptions) (*domain.ExecutionResult, error) {
	pool, err := e.registry.Get(databaseID)
	if err != nil {
		return nil, err
	}
	if opts.ReadOnly && (opts.Operation != "" || !sqlguard.IsReadOnly(sqlText)) {
		e.logger.Warn("write refused in read-only mode", "database", pool.cfg.ID, "sql", truncateSQL(sqlText))
		return nil, &domain.PolicyDeniedError{Reason: "write operation in read-only mode"}
	}
	release, err := pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	var res *domain.ExecutionResult
	if opts.Operation == "" && sqlguard.IsQuery(sqlText) {
		res, err = e.runQuery(ctx, pool, sqlText)
	} else {
		res, err = e.runWrite(ctx, pool, sqlText, opts)
	}
	if err != nil {
		ee := executionError(ctx, pool.cfg.ID, err)
		e.logger.Warn("statement failed", "database", pool.cfg.ID, "sql", truncateSQL(sqlText), "error", err)
		return nil, ee
	}
	e.logger.Debug("statement executed",
		"database", pool.cfg.ID, "write", res.Write, "rows", res.RowCount,
		"affected", res.RowsAffected, "elapsed_ms", res.ElapsedMillis(), "sql", truncateSQL(sqlText))
	return res, nil
}

func (e *Executor) runQuery(ctx context.Context, pool *Pool, sqlText string) (*domain.ExecutionResult, error) {
	start := time.Now()
	rows, err := pool.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	cols, data, _, err := scanRows(rows, 0)
	if err != nil {
		return nil, err
	}
	return &domain.ExecutionResult{
		Columns:  cols,
		Rows:     data,
		RowCount: len(data),
		Elapsed:  time.Since(start),
	}, nil
}

func (e *Executor) runWrite(ctx context.Context, pool *Pool, sqlText string, opts domain.ExecOptions) (*domain.ExecutionResult, error) {
	tx, err := pool.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	target, targetErr := sqlguard.ExtractTarget(sqlText)

	var img *domain.Image
	if opts.Capture && (opts.Operation == domain.OpDelete || opts.Operation == domain.OpUpdate) {
		img, tx, err = e.captureBefore(ctx, pool, tx, target, targetErr)
		if err != nil {
			return nil, err
		}
	}

	res := &domain.ExecutionResult{Write: true}
	start := time.Now()
	switch {
	case opts.Capture && opts.Operation == domain.OpInsert:
		img, err = e.insertCapturing(ctx, pool, tx, sqlText, target, targetErr, res)
	case targetErr == nil && target.HasReturning:
		err = e.queryInTx(ctx, tx, sqlText, res)
		res.RowsAffected = int64(res.RowCount)
	default:
		var r sql.Result
		r, err = tx.ExecContext(ctx, sqlText)
		if err == nil {
			res.RowsAffected, _ = r.RowsAffected()
		}
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	res.Elapsed = time.Since(start)
	if res.RowCount == 0 && len(res.Rows) == 0 {
		res.RowCount = int(res.RowsAffected)
	}
	res.Image = img
	return res, nil
}

// captureBefore reads the rows a DELETE or UPDATE is about to change inside
// the statement's transaction. A failed capture query leaves the write
// unaffected: the transaction is restarted and the image marked unavailable.
func (e *Executor) captureBefore(ctx context.Context, pool *Pool, tx *sql.Tx, target *sqlguard.Target, targetErr error) (*domain.Image, *sql.Tx, error) {
	if targetErr != nil {
		return &domain.Image{Kind: domain.ImageBefore, Unavailable: targetErr.Error()}, tx, nil
	}
	img := &domain.Image{Kind: domain.ImageBefore, Table: target.Table}

	rows, err := tx.QueryContext(ctx, target.CaptureQuery())
	if err == nil {
		img.Columns, img.Rows, img.Truncated, err = scanRows(rows, e.opts.MaxCaptureRows)
		_ = rows.Close()
	}
	if err == nil {
		return img, tx, nil
	}
	if ctx.Err() != nil {
		return nil, tx, ctx.Err()
	}

	e.logger.Warn("pre-image capture failed", "database", pool.cfg.ID, "table", target.Table, "error", err)
	_ = tx.Rollback()
	fresh, berr := pool.db.BeginTx(ctx, nil)
	if berr != nil {
		return nil, tx, berr
	}
	return &domain.Image{Kind: domain.ImageBefore, Table: target.Table, Unavailable: "capture failed: " + err.Error()}, fresh, nil
}

// insertCapturing runs an INSERT and records the inserted rows, through
// RETURNING where the engine supports it and through the last insert id
// otherwise.
func (e *Executor) insertCapturing(ctx context.Context, pool *Pool, tx *sql.Tx, sqlText string, target *sqlguard.Target, targetErr error, res *domain.ExecutionResult) (*domain.Image, error) {
	if targetErr != nil || target.Upsert {
		reason := "upsert statements cannot be compensated"
		if targetErr != nil {
			reason = targetErr.Error()
		}
		r, err := tx.ExecContext(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		res.RowsAffected, _ = r.RowsAffected()
		return &domain.Image{Kind: domain.ImageAfter, Unavailable: reason}, nil
	}

	img := &domain.Image{Kind: domain.ImageAfter, Table: target.Table}
	if pool.dialect.SupportsReturning() {
		stmt := sqlText
		if !target.HasReturning {
			stmt = sqlguard.TrimTerminator(sqlText) + " RETURNING *"
		}
		rows, err := tx.QueryContext(ctx, stmt)
		if err != nil {
			return nil, err
		}
		defer rows.Close() //nolint:errcheck
		cols, data, _, err := scanRows(rows, 0)
		if err != nil {
			return nil, err
		}
		res.RowsAffected = int64(len(data))
		if target.HasReturning {
			res.Columns, res.Rows, res.RowCount = cols, data, len(data)
		}
		img.Columns = cols
		if len(data) > e.opts.MaxCaptureRows {
			data = data[:e.opts.MaxCaptureRows]
			img.Truncated = true
		}
		img.Rows = data
		return img, nil
	}

	r, err := tx.ExecContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	res.RowsAffected, _ = r.RowsAffected()
	id, err := r.LastInsertId()
	if err != nil {
		img.Unavailable = "last insert id unavailable: " + err.Error()
		return img, nil
	}
	img.LastInsertID = id
	img.InsertCount = res.RowsAffected
	return img, nil
}

func (e *Executor) queryInTx(ctx context.Context, tx *sql.Tx, sqlText string, res *domain.ExecutionResult) error {
	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck
	cols, data, _, err := scanRows(rows, 0)
	if err != nil {
		return err
	}
	res.Columns, res.Rows, res.RowCount = cols, data, len(data)
	return nil
}

// ExecuteCompensation runs stmts in a single transaction and returns the total
// number of affected rows. Either every statement applies or none does; a
// statement that affects fewer rows than it expects aborts the transaction.
func (e *Executor) ExecuteCompensation(ctx context.Context, databaseID string, stmts []domain.Statement) (int64, error) {
	pool, err := e.registry.Get(databaseID)
	if err != nil {
		return 0, err
	}
	release, err := pool.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	tx, err := pool.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, executionError(ctx, pool.cfg.ID, err)
	}
	var total int64
	for _, st := range stmts {
		r, err := tx.ExecContext(ctx, st.SQL, st.Args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, executionError(ctx, pool.cfg.ID, err)
		}
		n, _ := r.RowsAffected()
		if n < st.Expect {
			_ = tx.Rollback()
			return 0, domain.ErrRollbackUnavailable(
				"compensating statement matched %d of %d row(s); the rows changed after the write", n, st.Expect)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, executionError(ctx, pool.cfg.ID, err)
	}
	return total, nil
}

// Query runs an auxiliary read such as an impact estimate or a schema lookup.
func (e *Executor) Query(ctx context.Context, databaseID, sqlText string, args ...any) (*domain.ExecutionResult, error) {
	pool, err := e.registry.Get(databaseID)
	if err != nil {
		return nil, err
	}
	release, err := pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := pool.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, executionError(ctx, pool.cfg.ID, err)
	}
	defer rows.Close() //nolint:errcheck
	cols, data, _, err := scanRows(rows, 0)
	if err != nil {
		return nil, executionError(ctx, pool.cfg.ID, err)
	}
	return &domain.ExecutionResult{Columns: cols, Rows: data, RowCount: len(data), Elapsed: time.Since(start)}, nil
}

// IsTimeout reports whether err is an execution timeout.
func IsTimeout(err error) bool {
	var ee *domain.ExecutionError
	return errors.As(err, &ee) && ee.Timeout
}

func truncateSQL(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

var _ domain.StatementExecutor = (*Executor)(nil)
