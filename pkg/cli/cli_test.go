package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanoj0905/natural-language-sql/internal/crypto"
)

// capturedRequest holds details captured from an incoming HTTP request.
type capturedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    string
}

// requestRecorder is a thread-safe recorder for HTTP requests received by httptest servers.
type requestRecorder struct {
	mu       sync.Mutex
	requests []capturedRequest
}

func (r *requestRecorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	body, _ := io.ReadAll(req.Body)
	defer func() { _ = req.Body.Close() }()

	r.requests = append(r.requests, capturedRequest{
		Method:  req.Method,
		Path:    req.URL.Path,
		Query:   req.URL.RawQuery,
		Headers: req.Header.Clone(),
		Body:    string(body),
	})
}

func (r *requestRecorder) last() capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return capturedRequest{}
	}
	return r.requests[len(r.requests)-1]
}

func (r *requestRecorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.requests...)
}

// jsonHandler returns an http.HandlerFunc that records the request and responds
// with the given status code and JSON body.
func jsonHandler(rec *requestRecorder, status int, respBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}
}

// isolateEnv points HOME at a temp dir and clears the NLSQL_* variables.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, k := range []string{"NLSQL_HOST", "NLSQL_SESSION", "NLSQL_PERFORMER", "NLSQL_DATABASE", "NLSQL_OUTPUT", "DB_ENCRYPTION_KEY"} {
		t.Setenv(k, "")
	}
	return dir
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args []string, stdin string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(t.Context())
	return out.String(), err
}

func runAgainst(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	isolateEnv(t)
	return runCmd(t, append([]string{"--host", srv.URL}, args...), "")
}

const readPlanJSON = `{
  "plan": {
    "id": "p1", "database_id": "shop", "mode": "read_only", "auto_execute": true, "started": true,
    "created_at": "2026-01-01T00:00:00Z",
    "steps": [{"number": 1, "sql": "SELECT name FROM users LIMIT 100", "status": "succeeded",
      "result": {"columns": ["name"], "rows": [["alice"], ["bob"]], "row_count": 2}}]
  },
  "summary": {"executed": 1}
}`

const pendingPlanJSON = `{
  "plan": {
    "id": "p2", "database_id": "shop", "mode": "write", "auto_execute": false, "started": false,
    "created_at": "2026-01-01T00:00:00Z",
    "steps": [{"number": 1, "sql": "DELETE FROM users WHERE name = 'bob'", "status": "awaiting_confirmation",
      "findings": [{"operation": "DELETE", "severity": "high"}]}]
  },
  "summary": {"pending": 1}
}`

const executedPlanJSON = `{
  "plan": {
    "id": "p2", "database_id": "shop", "mode": "write", "auto_execute": false, "started": true,
    "created_at": "2026-01-01T00:00:00Z",
    "steps": [{"number": 1, "sql": "DELETE FROM users WHERE name = 'bob'", "status": "succeeded",
      "result": {"rows_affected": 1, "write": true}}]
  },
  "summary": {"executed": 1},
  "rollback": {"id": "rb1", "plan_id": "p2", "database_id": "shop", "steps": [1], "remaining_seconds": 30}
}`

func TestAskCmd(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, readPlanJSON))
	defer srv.Close()

	out, err := runAgainst(t, srv, "--session", "s1", "--performer", "alice", "ask", "show", "all", "users")
	require.NoError(t, err)

	req := rec.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v1/query/natural", req.Path)
	assert.Equal(t, "s1", req.Headers.Get("X-Session-ID"))
	assert.Equal(t, "alice", req.Headers.Get("X-Performer"))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
	assert.Equal(t, "show all users", body["question"])
	assert.Equal(t, true, body["read_only"])
	assert.NotContains(t, body, "execute")

	assert.Contains(t, out, "Plan p1")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "executed 1, failed 0")
}

func TestAskCmd_ExecuteFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want any
	}{
		{name: "explicit false", args: []string{"ask", "--write", "--execute=false", "q"}, want: false},
		{name: "explicit true", args: []string{"ask", "--write", "--execute", "q"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &requestRecorder{}
			srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, pendingPlanJSON))
			defer srv.Close()

			_, err := runAgainst(t, srv, tt.args...)
			require.NoError(t, err)

			var body map[string]any
			require.NoError(t, json.Unmarshal([]byte(rec.last().Body), &body))
			assert.Equal(t, false, body["read_only"])
			assert.Equal(t, tt.want, body["execute"])
		})
	}
}

func TestAskCmd_YesConfirmsPendingSteps(t *testing.T) {
	rec := &requestRecorder{}
	mux := http.NewServeMux()
	mux.Handle("POST /v1/query/natural", jsonHandler(rec, http.StatusOK, pendingPlanJSON))
	mux.Handle("POST /v1/plans/p2/execute", jsonHandler(rec, http.StatusOK, executedPlanJSON))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := runAgainst(t, srv, "ask", "--write", "--yes", "delete", "bob")
	require.NoError(t, err)

	reqs := rec.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/v1/plans/p2/execute", reqs[1].Path)
	assert.JSONEq(t, `{"confirm_all": true}`, reqs[1].Body)
	assert.Contains(t, out, "1 row(s) affected")
	assert.Contains(t, out, "nlsql rollback rb1")
}

func TestAskCmd_PendingShowsConfirmHint(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, pendingPlanJSON))
	defer srv.Close()

	out, err := runAgainst(t, srv, "ask", "--write", "delete", "bob")
	require.NoError(t, err)
	assert.Len(t, rec.all(), 1)
	assert.Contains(t, out, "awaiting_confirmation")
	assert.Contains(t, out, "confirm with: nlsql execute p2")
}

func TestSQLCmd_JSONOutput(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, readPlanJSON))
	defer srv.Close()

	out, err := runAgainst(t, srv, "-o", "json", "-d", "shop", "sql", "SELECT name FROM users")
	require.NoError(t, err)

	assert.Equal(t, "/v1/query/sql", rec.last().Path)
	assert.JSONEq(t, `{"sql":"SELECT name FROM users","database_id":"shop","read_only":true}`, rec.last().Body)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Contains(t, resp, "plan")
}

func TestExecuteCmd(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantBody string
	}{
		{name: "all awaiting steps", args: []string{"execute", "p2"}, wantBody: `{"confirm_all": true}`},
		{name: "named steps", args: []string{"execute", "p2", "--step", "1", "--step", "3"}, wantBody: `{"confirm_all": false, "confirm": [1, 3]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &requestRecorder{}
			srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, executedPlanJSON))
			defer srv.Close()

			_, err := runAgainst(t, srv, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, "/v1/plans/p2/execute", rec.last().Path)
			assert.JSONEq(t, tt.wantBody, rec.last().Body)
		})
	}
}

func TestPlanAndCancelCmds(t *testing.T) {
	rec := &requestRecorder{}
	mux := http.NewServeMux()
	mux.Handle("GET /v1/plans/p2", jsonHandler(rec, http.StatusOK, pendingPlanJSON))
	mux.Handle("POST /v1/plans/p2/cancel", jsonHandler(rec, http.StatusAccepted, `{"plan_id":"p2","status":"cancel_requested"}`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := runAgainst(t, srv, "plan", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan p2 (write on shop)")

	out, err = runAgainst(t, srv, "cancel", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, "cancellation requested for plan p2")
	assert.Equal(t, http.MethodPost, rec.last().Method)
}

func TestRollbackCmds(t *testing.T) {
	rec := &requestRecorder{}
	mux := http.NewServeMux()
	mux.Handle("GET /v1/rollback", jsonHandler(rec, http.StatusOK,
		`{"id":"rb1","plan_id":"p2","database_id":"shop","steps":[1,2],"remaining_seconds":12}`))
	mux.Handle("POST /v1/rollback/rb1", jsonHandler(rec, http.StatusOK,
		`{"record_id":"rb1","statements":2,"rows_restored":3}`))
	mux.HandleFunc("DELETE /v1/rollback/rb1", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, err := runAgainst(t, srv, "rollback")
	require.NoError(t, err)
	assert.Contains(t, out, "rb1")
	assert.Contains(t, out, "1,2")

	out, err = runAgainst(t, srv, "rollback", "rb1")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back rb1: 2 statement(s), 3 row(s) restored")

	out, err = runAgainst(t, srv, "keep", "rb1")
	require.NoError(t, err)
	assert.Contains(t, out, "rollback record rb1 discarded")
	assert.Equal(t, http.MethodDelete, rec.last().Method)
}

func TestAuditCmd_Filters(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, `{
	  "records": [{"id":"a1","operation_type":"DELETE","table_name":"users","record_identifier":"name = 'bob'",
	    "performer":"alice","rows_affected":1,"timestamp":"2026-01-01T00:00:00Z"}],
	  "total": 1, "limit": 5, "offset": 0}`))
	defer srv.Close()

	out, err := runAgainst(t, srv, "-d", "shop", "audit", "--operation", "DELETE", "--table", "users", "--limit", "5")
	require.NoError(t, err)

	req := rec.last()
	assert.Equal(t, "/v1/audit", req.Path)
	assert.Contains(t, req.Query, "operation_type=DELETE")
	assert.Contains(t, req.Query, "table_name=users")
	assert.Contains(t, req.Query, "database_id=shop")
	assert.Contains(t, req.Query, "limit=5")
	assert.NotContains(t, req.Query, "offset")
	assert.Contains(t, out, "name = 'bob'")
	assert.Contains(t, out, "1 of 1 record(s)")
}

func TestDatabasesCmd(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, `{
	  "databases": [{"id":"shop","type":"sqlite","database":"shop.db","is_default":true},
	                {"id":"crm","type":"postgresql","host":"db.internal","database":"crm"}],
	  "default": "shop"}`))
	defer srv.Close()

	out, err := runAgainst(t, srv, "databases")
	require.NoError(t, err)
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "db.internal")
}

func TestCmd_APIErrorPropagates(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(jsonHandler(rec, http.StatusForbidden,
		`{"code":403,"message":"step 1: DROP is never allowed","step":1}`))
	defer srv.Close()

	_, err := runAgainst(t, srv, "sql", "--write", "DROP TABLE users")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.HTTPStatus)
	assert.Equal(t, 1, apiErr.Step)
	assert.Contains(t, err.Error(), "DROP is never allowed")
}

func TestCmd_ProfileAndEnvPrecedence(t *testing.T) {
	rec := &requestRecorder{}
	srv := httptest.NewServer(jsonHandler(rec, http.StatusOK, readPlanJSON))
	defer srv.Close()

	home := isolateEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".nlsql"), 0o700))
	profile := "current-profile: default\nprofiles:\n  default:\n    host: " + srv.URL +
		"\n    session: from-profile\n    database: shop\n"
	require.NoError(t, os.WriteFile(ConfigPath(), []byte(profile), 0o600))
	t.Setenv("NLSQL_SESSION", "from-env")

	_, err := runCmd(t, []string{"sql", "SELECT 1"}, "")
	require.NoError(t, err)

	req := rec.last()
	assert.Equal(t, "from-env", req.Headers.Get("X-Session-ID"))
	assert.Contains(t, req.Body, `"database_id":"shop"`)
}

func TestCmd_RejectsUnknownOutput(t *testing.T) {
	isolateEnv(t)
	_, err := runCmd(t, []string{"-o", "yaml", "gen-key"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestClassifyCmd(t *testing.T) {
	tests := []struct {
		name           string
		sql            string
		wantOps        []string
		wantStructural bool
	}{
		{name: "plain read", sql: "SELECT * FROM users", wantOps: []string{}},
		{name: "delete", sql: "DELETE FROM users WHERE id = 1", wantOps: []string{"DELETE"}},
		{name: "drop", sql: "DROP TABLE users", wantOps: []string{"DROP"}, wantStructural: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			out, err := runCmd(t, []string{"-o", "json", "classify", tt.sql}, "")
			require.NoError(t, err)

			var got classification
			require.NoError(t, json.Unmarshal([]byte(out), &got))
			ops := make([]string, 0, len(got.Findings))
			for _, f := range got.Findings {
				ops = append(ops, string(f.Operation))
			}
			assert.Equal(t, tt.wantOps, ops)
			assert.Equal(t, tt.wantStructural, got.Structural)
		})
	}
}

func TestSealCmd(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(key)
	require.NoError(t, err)

	tests := []struct {
		name  string
		args  []string
		stdin string
		env   string
	}{
		{name: "argument with flag key", args: []string{"seal", "--key", key, "s3cret"}},
		{name: "stdin with env key", args: []string{"seal"}, stdin: "s3cret\n", env: key},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv("DB_ENCRYPTION_KEY", tt.env)

			out, err := runCmd(t, tt.args, tt.stdin)
			require.NoError(t, err)

			sealed := strings.TrimSpace(out)
			assert.True(t, crypto.IsSealed(sealed))
			plain, err := sealer.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, "s3cret", plain)
		})
	}
}

func TestSealCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		stdin   string
		wantErr string
	}{
		{name: "no key", args: []string{"seal", "pw"}, wantErr: "no key"},
		{name: "bad key", args: []string{"seal", "--key", "zz", "pw"}, wantErr: "key"},
		{name: "empty password", args: []string{"seal", "--key", strings.Repeat("ab", 32)}, stdin: "\n", wantErr: "empty password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			_, err := runCmd(t, tt.args, tt.stdin)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGenKeyCmd(t *testing.T) {
	isolateEnv(t)
	out, err := runCmd(t, []string{"gen-key"}, "")
	require.NoError(t, err)

	key := strings.TrimSpace(out)
	assert.Len(t, key, 64)
	_, err = crypto.NewSealer(key)
	assert.NoError(t, err)
}
