package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

func step(n int, sql string) *domain.Step {
	return &domain.Step{Number: n, SQL: sql, Findings: sqlguard.Classify(sql), Status: domain.StepPending}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()
	gate := New(Options{})

	tests := []struct {
		name        string
		sql         string
		mode        domain.Mode
		autoExecute bool
		want        domain.Verdict
		reason      string
	}{
		{"read in read_only", "SELECT * FROM users", domain.ModeReadOnly, true, domain.VerdictAllow, ""},
		{"delete in read_only", "DELETE FROM users WHERE id = 1", domain.ModeReadOnly, true, domain.VerdictDeny, ReasonReadOnly},
		{"insert in read_only", "INSERT INTO t VALUES (1)", domain.ModeReadOnly, false, domain.VerdictDeny, ReasonReadOnly},
		{"drop table in write", "DROP TABLE users", domain.ModeWrite, true, domain.VerdictDeny, ReasonStructural},
		{"drop table in write manual", "DROP TABLE users", domain.ModeWrite, false, domain.VerdictDeny, ReasonStructural},
		{"truncate in write", "TRUNCATE users", domain.ModeWrite, true, domain.VerdictDeny, ReasonStructural},
		{"create in write", "CREATE TABLE t (id int)", domain.ModeWrite, true, domain.VerdictDeny, ReasonStructural},
		{"create in read_only", "CREATE TABLE t (id int)", domain.ModeReadOnly, true, domain.VerdictDeny, ReasonStructural},
		{"replace in read_only", "REPLACE INTO users (id, name) VALUES (1, 'x')", domain.ModeReadOnly, true, domain.VerdictDeny, ReasonReadOnly},
		{"merge in read_only", "MERGE INTO t USING s ON t.id = s.id WHEN MATCHED THEN DELETE", domain.ModeReadOnly, true, domain.VerdictDeny, ReasonReadOnly},
		{"cte write in read_only", "WITH d AS (SELECT 1) UPDATE t SET a = 1", domain.ModeReadOnly, true, domain.VerdictDeny, ReasonReadOnly},
		{"explain analyze in read_only", "EXPLAIN ANALYZE SELECT 1", domain.ModeReadOnly, true, domain.VerdictDeny, ReasonReadOnly},
		{"pragma assignment in read_only", "PRAGMA foreign_keys = OFF", domain.ModeReadOnly, true, domain.VerdictDeny, ReasonReadOnly},
		{"pragma read in read_only", "PRAGMA table_info(users)", domain.ModeReadOnly, true, domain.VerdictAllow, ""},
		{"cte read in read_only", "WITH c AS (SELECT 1 AS x) SELECT x FROM c", domain.ModeReadOnly, true, domain.VerdictAllow, ""},
		{"replace in write", "REPLACE INTO users (id, name) VALUES (1, 'x')", domain.ModeWrite, false, domain.VerdictAllow, ""},
		{"drop column in write", "ALTER TABLE users DROP COLUMN age", domain.ModeWrite, true, domain.VerdictDeny, ReasonStructural},
		{"alter add column auto", "ALTER TABLE users ADD COLUMN age int", domain.ModeWrite, true, domain.VerdictAllow, ""},
		{"delete auto", "DELETE FROM users WHERE id = 1", domain.ModeWrite, true, domain.VerdictAllow, ""},
		{"delete manual", "DELETE FROM users WHERE id = 1", domain.ModeWrite, false, domain.VerdictRequireConfirmation, ""},
		{"read in write manual", "SELECT 1", domain.ModeWrite, false, domain.VerdictAllow, ""},
		{"stacked statements", "SELECT 1; SELECT 2", domain.ModeReadOnly, true, domain.VerdictDeny, "blocked pattern: multiple statements"},
		{"pg_sleep", "SELECT pg_sleep(10)", domain.ModeReadOnly, true, domain.VerdictDeny, "blocked pattern: PostgreSQL dangerous function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := gate.Authorize(step(1, tt.sql), tt.mode, tt.autoExecute)
			assert.Equal(t, tt.want, d.Verdict)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, d.Reason)
			}
		})
	}
}

func TestAuthorize_CriticalAlwaysNeedsConfirmation(t *testing.T) {
	t.Parallel()
	gate := New(Options{})

	// A critical finding on a statement that passes the structural rule.
	s := &domain.Step{
		Number:   1,
		SQL:      "UPDATE users SET note = 'x'",
		Findings: []domain.DangerFinding{{Operation: domain.OpUpdate, Severity: domain.SeverityCritical}},
	}
	d := gate.Authorize(s, domain.ModeWrite, true)
	assert.Equal(t, domain.VerdictRequireConfirmation, d.Verdict)
}

func TestAuthorize_StrictSanitizer(t *testing.T) {
	t.Parallel()
	sql := "SELECT name FROM users -- list"

	assert.Equal(t, domain.VerdictAllow, New(Options{}).Authorize(step(1, sql), domain.ModeReadOnly, true).Verdict)

	d := New(Options{StrictSQL: true}).Authorize(step(1, sql), domain.ModeReadOnly, true)
	assert.Equal(t, domain.VerdictDeny, d.Verdict)
	assert.Contains(t, d.Reason, "SQL comment")
}

func TestAuthorize_DeterministicAndIdempotent(t *testing.T) {
	t.Parallel()
	gate := New(Options{})
	s := step(1, "DELETE FROM users WHERE id = 7")

	first := gate.Authorize(s, domain.ModeWrite, false)
	for range 5 {
		assert.Equal(t, first, gate.Authorize(s, domain.ModeWrite, false))
	}
}

func TestAuthorizePlan(t *testing.T) {
	t.Parallel()
	plan := &domain.QueryPlan{
		Mode:        domain.ModeWrite,
		AutoExecute: false,
		Steps: []*domain.Step{
			step(1, "SELECT id FROM users WHERE name = 'alice'"),
			step(2, "DELETE FROM users WHERE id = 1"),
			step(3, "DROP TABLE users"),
		},
	}

	denied := New(Options{}).AuthorizePlan(plan)
	require.NotNil(t, denied)
	assert.Equal(t, 3, denied.Step)
	assert.Equal(t, ReasonStructural, denied.Reason)

	assert.Equal(t, domain.StepPending, plan.Steps[0].Status)
	assert.Equal(t, domain.VerdictAllow, plan.Steps[0].Decision.Verdict)
	assert.Equal(t, domain.StepAwaitingConfirmation, plan.Steps[1].Status)
	assert.Equal(t, domain.StepDenied, plan.Steps[2].Status)
	assert.Equal(t, ReasonStructural, plan.Steps[2].Error)
}

func TestWarnings(t *testing.T) {
	t.Parallel()
	plan := &domain.QueryPlan{
		Mode: domain.ModeWrite,
		Steps: []*domain.Step{
			step(1, "INSERT INTO logs (msg) VALUES ('x')"),
			step(2, "DELETE FROM users WHERE id = 1"),
			step(3, "DROP TABLE users"),
			step(4, "SELECT 1"),
		},
	}

	warnings := Warnings(plan)
	require.Len(t, warnings, 2)
	assert.Equal(t, 2, warnings[0].Step)
	assert.Equal(t, domain.OpDelete, warnings[0].Operation)
	assert.Equal(t, domain.SeverityHigh, warnings[0].Severity)
	assert.Equal(t, 3, warnings[1].Step)
	assert.Equal(t, domain.SeverityCritical, warnings[1].Severity)
	assert.NotEmpty(t, warnings[1].Message)
}
