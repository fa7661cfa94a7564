package domain

import "strings"

// DatabaseType names a supported engine.
type DatabaseType string

// Supported engines.
const (
	DatabasePostgres DatabaseType = "postgres"
	DatabaseMySQL    DatabaseType = "mysql"
	DatabaseSQLite   DatabaseType = "sqlite"
	DatabaseDuckDB   DatabaseType = "duckdb"
)

// ParseDatabaseType normalizes common spellings of an engine name.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DatabasePostgres, nil
	case "mysql", "mariadb":
		return DatabaseMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseSQLite, nil
	case "duckdb":
		return DatabaseDuckDB, nil
	default:
		return "", ErrValidation("unsupported database type %q", s)
	}
}

// DatabaseConfig describes one registered database connection.
type DatabaseConfig struct {
	ID       string       `json:"id" yaml:"id"`
	Nickname string       `json:"nickname,omitempty" yaml:"nickname"`
	Type     DatabaseType `json:"type" yaml:"type"`
	Host     string       `json:"host,omitempty" yaml:"host"`
	Port     int          `json:"port,omitempty" yaml:"port"`
	Database string       `json:"database,omitempty" yaml:"database"`
	Username string       `json:"username,omitempty" yaml:"username"`
	Password string       `json:"-" yaml:"password"`
	SSLMode  string       `json:"ssl_mode,omitempty" yaml:"ssl_mode"`
	// Path is the file path for embedded engines (sqlite, duckdb).
	Path string `json:"path,omitempty" yaml:"path"`
	// DSN overrides every other connection field when set.
	DSN string `json:"-" yaml:"dsn"`
}

// Validate checks that the config names an engine and enough to reach it.
func (c *DatabaseConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrValidation("database id is required")
	}
	t, err := ParseDatabaseType(string(c.Type))
	if err != nil {
		return err
	}
	c.Type = t
	if c.DSN != "" {
		return nil
	}
	switch t {
	case DatabasePostgres, DatabaseMySQL:
		if c.Host == "" || c.Database == "" {
			return ErrValidation("database %q: host and database are required for %s", c.ID, t)
		}
	case DatabaseSQLite:
		if c.Path == "" {
			return ErrValidation("database %q: path is required for sqlite", c.ID)
		}
	}
	return nil
}

// DatabaseInfo is the public view of a registered database.
type DatabaseInfo struct {
	ID        string       `json:"id"`
	Nickname  string       `json:"nickname,omitempty"`
	Type      DatabaseType `json:"type"`
	Database  string       `json:"database,omitempty"`
	Host      string       `json:"host,omitempty"`
	IsDefault bool         `json:"is_default"`
}

// HealthStatus reports the reachability of one database.
type HealthStatus struct {
	DatabaseID string `json:"database_id"`
	Healthy    bool   `json:"healthy"`
	Error      string `json:"error,omitempty"`
}
