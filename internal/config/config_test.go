package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanoj0905/natural-language-sql/internal/crypto"
	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

var envKeys = []string{
	"LISTEN_ADDR", "TLS_CERT_FILE", "TLS_KEY_FILE", "ALLOW_INSECURE_HTTP", "LOG_LEVEL", "ENV",
	"AUDIT_DB_PATH", "DATABASES_FILE", "DEFAULT_DATABASE", "DB_ENCRYPTION_KEY",
	"OLLAMA_BASE_URL", "OLLAMA_MODEL", "OLLAMA_TEMPERATURE", "OLLAMA_TIMEOUT", "ORACLE_MAX_ATTEMPTS",
	"QUERY_TIMEOUT", "MAX_QUERY_RESULTS", "DEFAULT_QUERY_LIMIT", "STRICT_SQL", "PLAN_CACHE_SIZE",
	"ROLLBACK_WINDOW", "ROLLBACK_MAX_ROWS", "DB_POOL_SIZE", "DB_MAX_OVERFLOW", "DB_POOL_RECYCLE",
	"DB_POOL_TIMEOUT", "ENABLE_SCHEMA_CACHE", "SCHEMA_CACHE_TTL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"CORS_ALLOWED_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, "nlsql_audit.sqlite", cfg.AuditDBPath)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaBaseURL)
	assert.Equal(t, "llama3.2", cfg.OllamaModel)
	assert.InDelta(t, 0.1, cfg.OllamaTemperature, 1e-9)
	assert.Equal(t, 60*time.Second, cfg.OllamaTimeout)
	assert.Equal(t, 3, cfg.OracleMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 30*time.Second, cfg.RollbackWindow)
	assert.Equal(t, 1000, cfg.RollbackMaxRows)
	assert.Equal(t, 1000, cfg.MaxQueryResults)
	assert.Equal(t, 100, cfg.DefaultQueryLimit)
	assert.Equal(t, 5, cfg.DBPoolSize)
	assert.Equal(t, 10, cfg.DBMaxOverflow)
	assert.Equal(t, time.Hour, cfg.DBPoolRecycle)
	assert.Equal(t, 30*time.Second, cfg.DBPoolTimeout)
	assert.True(t, cfg.EnableSchemaCache)
	assert.Equal(t, time.Hour, cfg.SchemaCacheTTL)
	assert.Equal(t, 1024, cfg.PlanCacheSize)
	assert.False(t, cfg.StrictSQL)
	assert.InDelta(t, 1.0, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 60, cfg.RateLimitBurst)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
	assert.Contains(t, cfg.Warnings, "DATABASES_FILE not set; databases must be registered through the API")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("QUERY_TIMEOUT", "5s")
	t.Setenv("ROLLBACK_WINDOW", "45")
	t.Setenv("STRICT_SQL", "yes")
	t.Setenv("ENABLE_SCHEMA_CACHE", "off")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("DATABASES_FILE", "dbs.yaml")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 45*time.Second, cfg.RollbackWindow)
	assert.True(t, cfg.StrictSQL)
	assert.False(t, cfg.EnableSchemaCache)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_InvalidValuesWarn(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASES_FILE", "dbs.yaml")
	t.Setenv("DB_POOL_SIZE", "many")
	t.Setenv("QUERY_TIMEOUT", "-3s")
	t.Setenv("DEFAULT_QUERY_LIMIT", "5000")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.DBPoolSize)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, 1000, cfg.DefaultQueryLimit)
	assert.Len(t, cfg.Warnings, 3)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "half TLS",
			env:     map[string]string{"TLS_CERT_FILE": "cert.pem"},
			wantErr: "TLS_CERT_FILE and TLS_KEY_FILE",
		},
		{
			name:    "production CORS wildcard",
			env:     map[string]string{"ENV": "production", "CORS_ALLOWED_ORIGINS": "*", "ALLOW_INSECURE_HTTP": "true"},
			wantErr: "CORS wildcard",
		},
		{
			name:    "production without TLS",
			env:     map[string]string{"ENV": "production"},
			wantErr: "TLS_CERT_FILE/TLS_KEY_FILE must be set in production",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"} {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel().String(), in)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	t.Setenv("NLSQL_TEST_KEY", "")
	t.Setenv("NLSQL_TEST_QUOTED", "")
	t.Setenv("NLSQL_TEST_EXPORTED", "")
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nNLSQL_TEST_KEY=test_value\nNLSQL_TEST_QUOTED=\"quoted value\"\nexport NLSQL_TEST_EXPORTED='x'\nnot a pair\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "test_value", os.Getenv("NLSQL_TEST_KEY"))
	assert.Equal(t, "quoted value", os.Getenv("NLSQL_TEST_QUOTED"))
	assert.Equal(t, "x", os.Getenv("NLSQL_TEST_EXPORTED"))
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("NLSQL_TEST_PRECEDENCE", "from_env")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NLSQL_TEST_PRECEDENCE=from_file\n"), 0o600))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from_env", os.Getenv("NLSQL_TEST_PRECEDENCE"))
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "databases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDatabases(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)
	sealed, err := sealer.Seal("s3cret")
	require.NoError(t, err)
	t.Setenv("NLSQL_TEST_HOST", "db.internal")

	path := writeFile(t, `
default: shop
databases:
  - id: shop
    type: postgresql
    host: ${NLSQL_TEST_HOST}
    port: 5432
    database: shop
    username: app
    password: `+sealed+`
  - id: local
    type: sqlite
    path: /tmp/local.db
`)

	file, err := LoadDatabases(path, sealer)
	require.NoError(t, err)
	assert.Equal(t, "shop", file.Default)
	require.Len(t, file.Databases, 2)
	assert.Equal(t, domain.DatabasePostgres, file.Databases[0].Type)
	assert.Equal(t, "db.internal", file.Databases[0].Host)
	assert.Equal(t, "s3cret", file.Databases[0].Password)
	assert.Equal(t, domain.DatabaseSQLite, file.Databases[1].Type)
}

func TestLoadDatabases_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed", content: "databases: [", wantErr: "parse databases file"},
		{name: "missing type", content: "databases:\n  - id: a\n", wantErr: "unsupported database type"},
		{name: "duplicate", content: "databases:\n  - {id: a, type: sqlite, path: x}\n  - {id: a, type: sqlite, path: y}\n", wantErr: "duplicate id"},
		{name: "unknown default", content: "default: b\ndatabases:\n  - {id: a, type: sqlite, path: x}\n", wantErr: "default \"b\" is not listed"},
		{name: "sealed without key", content: "databases:\n  - {id: a, type: sqlite, path: x, password: \"enc:00\"}\n", wantErr: "DB_ENCRYPTION_KEY is not set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadDatabases(writeFile(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDatabases_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadDatabases(filepath.Join(t.TempDir(), "none.yaml"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
