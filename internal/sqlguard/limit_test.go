package sqlguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnforceLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"adds default", "SELECT * FROM users", "SELECT * FROM users LIMIT 100"},
		{"drops terminator", "SELECT * FROM users;", "SELECT * FROM users LIMIT 100"},
		{"keeps trailing comment out", "SELECT * FROM users -- all of them", "SELECT * FROM users LIMIT 100"},
		{"keeps small limit", "SELECT * FROM users LIMIT 5", "SELECT * FROM users LIMIT 5"},
		{"clamps large limit", "select * from users limit 5000", "select * from users limit 1000"},
		{"subquery limit is not top level", "SELECT * FROM (SELECT * FROM t LIMIT 5) s",
			"SELECT * FROM (SELECT * FROM t LIMIT 5) s LIMIT 100"},
		{"cte select", "WITH x AS (SELECT 1 AS a) SELECT a FROM x", "WITH x AS (SELECT 1 AS a) SELECT a FROM x LIMIT 100"},
		{"fetch first is respected", "SELECT * FROM t FETCH FIRST 3 ROWS ONLY", "SELECT * FROM t FETCH FIRST 3 ROWS ONLY"},
		{"before offset", "SELECT * FROM users ORDER BY id OFFSET 20", "SELECT * FROM users ORDER BY id LIMIT 100 OFFSET 20"},
		{"before for update", "SELECT * FROM users WHERE id = 1 FOR UPDATE;", "SELECT * FROM users WHERE id = 1 LIMIT 100 FOR UPDATE"},
		{"before offset and lock", "SELECT * FROM t OFFSET 5 FOR SHARE", "SELECT * FROM t LIMIT 100 OFFSET 5 FOR SHARE"},
		{"before mysql lock", "SELECT * FROM t LOCK IN SHARE MODE", "SELECT * FROM t LIMIT 100 LOCK IN SHARE MODE"},
		{"offset inside subquery", "SELECT * FROM (SELECT * FROM t OFFSET 2) s", "SELECT * FROM (SELECT * FROM t OFFSET 2) s LIMIT 100"},
		{"offset then limit clamped", "SELECT * FROM t OFFSET 5 LIMIT 5000", "SELECT * FROM t OFFSET 5 LIMIT 1000"},
		{"writes untouched", "DELETE FROM users", "DELETE FROM users"},
		{"show untouched", "SHOW TABLES", "SHOW TABLES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, EnforceLimit(tt.sql, 100, 1000))
		})
	}
}

func TestEnforceLimit_Disabled(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "SELECT 1", EnforceLimit("SELECT 1", 0, 0))
	assert.Equal(t, "SELECT 1 LIMIT 9000", EnforceLimit("SELECT 1 LIMIT 9000", 100, 0))
}
