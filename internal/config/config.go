// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	ListenAddr        string // HTTP listen address (default ":8000")
	TLSCertFile       string // TLS certificate file path (optional)
	TLSKeyFile        string // TLS private key file path (optional)
	AllowInsecureHTTP bool   // allow non-TLS listener in production (for trusted TLS termination)
	LogLevel          string // log level: debug, info, warn, error (default "info")
	Env               string // environment: "development" (default) or "production"

	AuditDBPath     string // SQLite file of the audit log
	DatabasesFile   string // YAML file listing target databases (optional)
	DefaultDatabase string // overrides the default named in DatabasesFile
	EncryptionKey   string // 64-char hex key for sealed passwords (DB_ENCRYPTION_KEY)

	// Oracle
	OllamaBaseURL     string
	OllamaModel       string
	OllamaTemperature float64
	OllamaTimeout     time.Duration
	OracleMaxAttempts int

	// Execution
	QueryTimeout      time.Duration
	MaxQueryResults   int
	DefaultQueryLimit int
	StrictSQL         bool
	PlanCacheSize     int

	// Rollback
	RollbackWindow  time.Duration
	RollbackMaxRows int

	// Target database pools
	DBPoolSize    int
	DBMaxOverflow int
	DBPoolRecycle time.Duration
	DBPoolTimeout time.Duration

	// Schema cache
	EnableSchemaCache bool
	SchemaCacheTTL    time.Duration

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 1)
	RateLimitBurst int     // burst capacity (default 60)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["http://localhost:3000"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables. Malformed
// numeric or duration values fall back to their defaults with a warning.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:      envDefault("LISTEN_ADDR", ":8000"),
		TLSCertFile:     os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:      os.Getenv("TLS_KEY_FILE"),
		LogLevel:        envDefault("LOG_LEVEL", "info"),
		Env:             envDefault("ENV", "development"),
		AuditDBPath:     envDefault("AUDIT_DB_PATH", "nlsql_audit.sqlite"),
		DatabasesFile:   os.Getenv("DATABASES_FILE"),
		DefaultDatabase: os.Getenv("DEFAULT_DATABASE"),
		EncryptionKey:   os.Getenv("DB_ENCRYPTION_KEY"),
		OllamaBaseURL:   envDefault("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:     envDefault("OLLAMA_MODEL", "llama3.2"),

		AllowInsecureHTTP: parseBoolEnvDefault("ALLOW_INSECURE_HTTP", false),
		StrictSQL:         parseBoolEnvDefault("STRICT_SQL", false),
		EnableSchemaCache: parseBoolEnvDefault("ENABLE_SCHEMA_CACHE", true),
	}

	cfg.OllamaTemperature = cfg.envFloat("OLLAMA_TEMPERATURE", 0.1)
	cfg.OllamaTimeout = cfg.envDuration("OLLAMA_TIMEOUT", 60*time.Second)
	cfg.OracleMaxAttempts = cfg.envInt("ORACLE_MAX_ATTEMPTS", 3)
	cfg.QueryTimeout = cfg.envDuration("QUERY_TIMEOUT", 30*time.Second)
	cfg.RollbackWindow = cfg.envDuration("ROLLBACK_WINDOW", 30*time.Second)
	cfg.RollbackMaxRows = cfg.envInt("ROLLBACK_MAX_ROWS", 1000)
	cfg.MaxQueryResults = cfg.envInt("MAX_QUERY_RESULTS", 1000)
	cfg.DefaultQueryLimit = cfg.envInt("DEFAULT_QUERY_LIMIT", 100)
	cfg.PlanCacheSize = cfg.envInt("PLAN_CACHE_SIZE", 1024)
	cfg.DBPoolSize = cfg.envInt("DB_POOL_SIZE", 5)
	cfg.DBMaxOverflow = cfg.envInt("DB_MAX_OVERFLOW", 10)
	cfg.DBPoolRecycle = cfg.envDuration("DB_POOL_RECYCLE", time.Hour)
	cfg.DBPoolTimeout = cfg.envDuration("DB_POOL_TIMEOUT", 30*time.Second)
	cfg.SchemaCacheTTL = cfg.envDuration("SCHEMA_CACHE_TTL", time.Hour)
	cfg.RateLimitRPS = cfg.envFloat("RATE_LIMIT_RPS", 1)
	cfg.RateLimitBurst = cfg.envInt("RATE_LIMIT_BURST", 60)

	cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if origins = compactNonEmpty(origins); len(origins) > 0 {
			cfg.CORSAllowedOrigins = origins
		}
	}

	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if cfg.DefaultQueryLimit > cfg.MaxQueryResults {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf(
			"DEFAULT_QUERY_LIMIT %d exceeds MAX_QUERY_RESULTS %d; clamping", cfg.DefaultQueryLimit, cfg.MaxQueryResults))
		cfg.DefaultQueryLimit = cfg.MaxQueryResults
	}
	if cfg.DatabasesFile == "" {
		cfg.Warnings = append(cfg.Warnings, "DATABASES_FILE not set; databases must be registered through the API")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		for _, o := range cfg.CORSAllowedOrigins {
			if o == "*" {
				return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
			}
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
		}
	}

	return cfg, nil
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (c *Config) envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using %d", key, v, def))
		return def
	}
	return n
}

func (c *Config) envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using %g", key, v, def))
		return def
	}
	return f
}

func (c *Config) envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare integers are read as seconds.
		if n, nerr := strconv.Atoi(v); nerr == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
		c.Warnings = append(c.Warnings, fmt.Sprintf("invalid %s=%q, using %s", key, v, def))
		return def
	}
	if d <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s must be positive, using %s", key, def))
		return def
	}
	return d
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
