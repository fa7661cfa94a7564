package engine

// database/sql drivers for every supported engine. mysql and sqlite3 register
// through the packages imported for error mapping.
import (
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)
