package schema

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/engine"
)

func newSQLite(t *testing.T) (*engine.Executor, *engine.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := engine.NewRegistry(engine.PoolOptions{Size: 2}, logger)
	t.Cleanup(func() { _ = reg.Close() })
	require.NoError(t, reg.Register(context.Background(), domain.DatabaseConfig{
		ID: "shop", Type: domain.DatabaseSQLite, Path: filepath.Join(t.TempDir(), "shop.sqlite"),
	}))
	pool, err := reg.Get("shop")
	require.NoError(t, err)
	_, err = pool.DB().Exec(`
		CREATE TABLE teams (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
		CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			email TEXT NOT NULL,
			team_id INTEGER REFERENCES teams(id) ON DELETE CASCADE,
			status TEXT DEFAULT 'active'
		);
		INSERT INTO teams VALUES (1, 'core');
		INSERT INTO users (id, email, team_id) VALUES (1, 'ada@example.com', 1), (2, 'bob@example.com', 1);
	`)
	require.NoError(t, err)
	return engine.NewExecutor(reg, engine.ExecutorOptions{}, logger), reg
}

func TestInspector_SQLite(t *testing.T) {
	t.Parallel()
	ex, _ := newSQLite(t)
	in := NewInspector(ex, Options{SampleRows: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tables, err := in.GetSchema(context.Background(), "shop")
	require.NoError(t, err)
	require.Len(t, tables, 2)

	users, ok := domain.FindTable(tables, "USERS")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, users.PrimaryKey())
	require.Len(t, users.Columns, 4)
	assert.Equal(t, "email", users.Columns[1].Name)
	assert.False(t, users.Columns[1].Nullable)
	assert.True(t, users.Columns[2].Nullable)
	require.NotNil(t, users.Columns[3].Default)
	assert.Equal(t, "'active'", *users.Columns[3].Default)

	require.Len(t, users.ForeignKeys, 1)
	assert.Equal(t, domain.ForeignKey{Column: "team_id", RefTable: "teams", RefColumn: "id", OnDelete: "CASCADE"}, users.ForeignKeys[0])
	assert.Len(t, users.SampleRows, 1)
}

func TestInspector_CacheAndInvalidate(t *testing.T) {
	t.Parallel()
	ex, reg := newSQLite(t)
	in := NewInspector(ex, Options{CacheEnabled: true, CacheTTL: time.Minute}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	first, err := in.GetSchema(ctx, "shop")
	require.NoError(t, err)
	require.Len(t, first, 2)

	pool, err := reg.Get("shop")
	require.NoError(t, err)
	_, err = pool.DB().Exec("CREATE TABLE orders (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	cached, err := in.GetSchema(ctx, "shop")
	require.NoError(t, err)
	assert.Len(t, cached, 2, "served from cache")

	in.Invalidate("shop")
	fresh, err := in.GetSchema(ctx, "shop")
	require.NoError(t, err)
	assert.Len(t, fresh, 3)
}

func TestInspector_UnknownDatabase(t *testing.T) {
	t.Parallel()
	ex, _ := newSQLite(t)
	in := NewInspector(ex, Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := in.GetSchema(context.Background(), "nope")
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSummary(t *testing.T) {
	t.Parallel()
	tables := []domain.Table{{
		Name: "users",
		Columns: []domain.Column{
			{Name: "id", Type: "INTEGER", PrimaryKey: true},
			{Name: "email", Type: "TEXT"},
			{Name: "team_id", Type: "INTEGER", Nullable: true},
		},
		ForeignKeys: []domain.ForeignKey{{Column: "team_id", RefTable: "teams", RefColumn: "id"}},
	}}

	want := "Table users:\n" +
		"  - id INTEGER (PRIMARY KEY)\n" +
		"  - email TEXT NOT NULL\n" +
		"  - team_id INTEGER\n" +
		"  Foreign keys: team_id -> teams.id\n"
	assert.Equal(t, want, Summary(tables))
}
