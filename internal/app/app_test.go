package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanoj0905/natural-language-sql/internal/config"
	"github.com/jmanoj0905/natural-language-sql/internal/crypto"
	internaldb "github.com/jmanoj0905/natural-language-sql/internal/db"
	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/testutil"
)

func seedShop(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck
	_, err = db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT NOT NULL);
		INSERT INTO users (id, username) VALUES (1, 'alice'), (2, 'bob');
	`)
	require.NoError(t, err)
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		DatabasesFile:      filepath.Join(dir, "databases.yaml"),
		QueryTimeout:       5 * time.Second,
		RollbackWindow:     time.Minute,
		RollbackMaxRows:    100,
		MaxQueryResults:    1000,
		DefaultQueryLimit:  100,
		PlanCacheSize:      16,
		DBPoolSize:         2,
		DBPoolRecycle:      time.Hour,
		DBPoolTimeout:      time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}
}

func newTestApp(t *testing.T, oracle domain.SQLOracle) (*App, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	shop := filepath.Join(dir, "shop.sqlite")
	seedShop(t, shop)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)
	sealed, err := sealer.Seal("unused")
	require.NoError(t, err)

	yaml := "default: shop\ndatabases:\n" +
		"  - {id: shop, type: sqlite, path: " + shop + ", password: \"" + sealed + "\"}\n" +
		"  - {id: broken, type: postgres, host: 127.0.0.1, port: 1, database: x}\n"
	cfg := testConfig(dir)
	cfg.EncryptionKey = key
	require.NoError(t, os.WriteFile(cfg.DatabasesFile, []byte(yaml), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	writeDB, readDB := internaldb.OpenTestStore(t)
	a, err := New(context.Background(), Deps{
		Cfg: cfg, WriteDB: writeDB, ReadDB: readDB, Logger: logger, Version: "test", Oracle: oracle,
	})
	require.NoError(t, err)
	a.Start()
	t.Cleanup(func() { _ = a.Close() })
	return a, a.Router(t.Context(), cfg, logger)
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", "tab-1")
	req.Header.Set("X-Performer", "alice")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestNew_RegistersReachableDatabases(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, &testutil.MockOracle{})

	dbs := a.Registry.List()
	require.Len(t, dbs, 1)
	assert.Equal(t, "shop", dbs[0].ID)
	assert.Equal(t, "shop", a.Registry.Default())
}

func TestNew_BadEncryptionKey(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t.TempDir())
	cfg.DatabasesFile = ""
	cfg.EncryptionKey = "not-hex"
	_, err := New(context.Background(), Deps{Cfg: cfg, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_ENCRYPTION_KEY")
}

func TestEndToEnd_DeleteConfirmAuditRollback(t *testing.T) {
	t.Parallel()
	oracle := &testutil.MockOracle{GenerateFn: testutil.Answer("DELETE FROM users WHERE id = 2")}
	a, h := newTestApp(t, oracle)

	rec, body := post(t, h, "/v1/query/natural", `{"question":"delete bob","read_only":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plan := body["plan"].(map[string]any)
	planID := plan["id"].(string)
	assert.Equal(t, "awaiting_confirmation", plan["steps"].([]any)[0].(map[string]any)["status"])

	rec, body = post(t, h, "/v1/plans/"+planID+"/execute", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rb := body["rollback"].(map[string]any)
	recordID := rb["id"].(string)

	records, total, err := a.Audit.List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, "DELETE", records[0].OperationType)
	assert.Equal(t, "alice", records[0].Performer)
	assert.Contains(t, records[0].PreImage, "bob")

	rec, _ = post(t, h, "/v1/rollback/"+recordID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res, err := a.Executor.Query(context.Background(), "shop", "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows[0][0])

	_, total, err = a.Audit.List(context.Background(), domain.AuditFilter{OperationType: "ROLLBACK"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestEndToEnd_DirectDropDenied(t *testing.T) {
	t.Parallel()
	_, h := newTestApp(t, &testutil.MockOracle{})

	rec, body := post(t, h, "/v1/query/sql", `{"sql":"DROP TABLE users","read_only":false}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.InDelta(t, 1, body["step"], 0)
}
