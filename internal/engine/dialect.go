package engine

import (
	"fmt"
	"math/big"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Dialect renders identifiers, placeholders and literals for one engine.
type Dialect struct {
	name        domain.DatabaseType
	identQuote  byte
	dollarArgs  bool
	backslashes bool
	returning   bool
	timeLayout  string
}

var (
	postgresDialect = &Dialect{name: domain.DatabasePostgres, identQuote: '"', dollarArgs: true, returning: true, timeLayout: time.RFC3339Nano}
	mysqlDialect    = &Dialect{name: domain.DatabaseMySQL, identQuote: '`', backslashes: true, timeLayout: "2006-01-02 15:04:05.999999"}
	sqliteDialect   = &Dialect{name: domain.DatabaseSQLite, identQuote: '"', returning: true, timeLayout: "2006-01-02 15:04:05.999999999-07:00"}
	duckdbDialect   = &Dialect{name: domain.DatabaseDuckDB, identQuote: '"', returning: true, timeLayout: "2006-01-02 15:04:05.999999"}
)

// DialectFor returns the dialect of a database type.
func DialectFor(t domain.DatabaseType) (*Dialect, error) {
	switch t {
	case domain.DatabasePostgres:
		return postgresDialect, nil
	case domain.DatabaseMySQL:
		return mysqlDialect, nil
	case domain.DatabaseSQLite:
		return sqliteDialect, nil
	case domain.DatabaseDuckDB:
		return duckdbDialect, nil
	default:
		return nil, domain.ErrValidation("unsupported database type %q", t)
	}
}

// Name implements domain.Dialect.
func (d *Dialect) Name() domain.DatabaseType { return d.name }

// SupportsReturning reports whether INSERT ... RETURNING is available.
func (d *Dialect) SupportsReturning() bool { return d.returning }

// QuoteIdent quotes a single identifier.
func (d *Dialect) QuoteIdent(name string) string {
	q := string(d.identQuote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d *Dialect) Placeholder(n int) string {
	if d.dollarArgs {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Literal renders v as an SQL literal.
func (d *Dialect) Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(x)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case *big.Int:
		return x.String()
	case time.Time:
		return d.quoteString(x.Format(d.timeLayout))
	case []byte:
		return d.quoteString(string(x))
	case string:
		return d.quoteString(x)
	default:
		return d.quoteString(fmt.Sprint(x))
	}
}

func (d *Dialect) quoteString(s string) string {
	if d.backslashes {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// driverName returns the database/sql driver registered for the type.
func driverName(t domain.DatabaseType) string {
	switch t {
	case domain.DatabasePostgres:
		return "pgx"
	case domain.DatabaseMySQL:
		return "mysql"
	case domain.DatabaseSQLite:
		return "sqlite3"
	case domain.DatabaseDuckDB:
		return "duckdb"
	default:
		return ""
	}
}

// BuildDSN renders a driver-specific connection string for cfg.
func BuildDSN(cfg domain.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	switch cfg.Type {
	case domain.DatabasePostgres:
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		u := url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
			Path:   "/" + cfg.Database,
		}
		if cfg.Username != "" {
			u.User = url.UserPassword(cfg.Username, cfg.Password)
		}
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "prefer"
		}
		u.RawQuery = url.Values{"sslmode": {sslMode}}.Encode()
		return u.String(), nil

	case domain.DatabaseMySQL:
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		mc.DBName = cfg.Database
		mc.ParseTime = true
		// UPDATE reports matched rows, not changed rows.
		mc.ClientFoundRows = true
		switch strings.ToLower(cfg.SSLMode) {
		case "", "disable", "false":
		case "require", "skip-verify":
			mc.TLSConfig = "skip-verify"
		default:
			mc.TLSConfig = "true"
		}
		return mc.FormatDSN(), nil

	case domain.DatabaseSQLite:
		params := url.Values{}
		params.Set("_foreign_keys", "on")
		params.Set("_busy_timeout", "5000")
		return cfg.Path + "?" + params.Encode(), nil

	case domain.DatabaseDuckDB:
		return cfg.Path, nil

	default:
		return "", domain.ErrValidation("unsupported database type %q", cfg.Type)
	}
}

var _ domain.Dialect = (*Dialect)(nil)
