package engine

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// PostgreSQL query_canceled, raised by statement_timeout and cancellation.
const pgQueryCanceled = "57014"

// MySQL "query execution was interrupted" and "maximum statement execution time exceeded".
const (
	mysqlQueryInterrupted = 1317
	mysqlMaxExecTime      = 3024
)

// executionError converts a driver error into a domain.ExecutionError. ctx is
// the statement context: a deadline on it marks the error as a timeout, while
// a caller cancellation never does.
func executionError(ctx context.Context, databaseID string, err error) error {
	if err == nil {
		return nil
	}
	ee := &domain.ExecutionError{DatabaseID: databaseID, Message: err.Error(), Err: err}

	// interrupted is set when the server stopped the statement, which happens
	// both on its own timeouts and on client cancellation.
	var interrupted bool
	var pgErr *pgconn.PgError
	var myErr *mysql.MySQLError
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pgErr):
		ee.Code = pgErr.Code
		ee.Message = pgErr.Message
		interrupted = pgErr.Code == pgQueryCanceled
	case errors.As(err, &myErr):
		ee.Code = strconv.Itoa(int(myErr.Number))
		ee.Message = myErr.Message
		interrupted = myErr.Number == mysqlQueryInterrupted || myErr.Number == mysqlMaxExecTime
	case errors.As(err, &liteErr):
		ee.Code = liteErr.Code.Error()
		interrupted = liteErr.Code == sqlite3.ErrInterrupt
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		if ee.Code == "" {
			ee.Message = "statement was canceled"
		}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		ee.Timeout = true
		if ee.Code == "" {
			ee.Message = "statement exceeded the query timeout"
		}
	default:
		ee.Timeout = interrupted
	}
	return ee
}
