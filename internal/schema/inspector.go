// Package schema reads table metadata from registered databases for prompt
// context and rollback key resolution.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Options configures an Inspector.
type Options struct {
	CacheEnabled bool
	CacheTTL     time.Duration
	CacheSize    int
	// SampleRows is the number of rows fetched per table; 0 disables sampling.
	SampleRows int
}

// Inspector implements domain.SchemaProvider over a StatementExecutor.
type Inspector struct {
	exec   domain.StatementExecutor
	cache  *expirable.LRU[string, []domain.Table]
	group  singleflight.Group
	opts   Options
	logger *slog.Logger
}

// NewInspector creates an Inspector.
func NewInspector(exec domain.StatementExecutor, opts Options, logger *slog.Logger) *Inspector {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	in := &Inspector{exec: exec, opts: opts, logger: logger}
	if opts.CacheEnabled {
		in.cache = expirable.NewLRU[string, []domain.Table](opts.CacheSize, nil, opts.CacheTTL)
	}
	return in
}

// GetSchema returns the tables of a database, from cache when possible.
// Concurrent loads of the same database share one round of queries.
func (in *Inspector) GetSchema(ctx context.Context, databaseID string) ([]domain.Table, error) {
	if in.cache != nil {
		if tables, ok := in.cache.Get(databaseID); ok {
			return tables, nil
		}
	}
	v, err, _ := in.group.Do(databaseID, func() (interface{}, error) {
		start := time.Now()
		tables, err := in.load(ctx, databaseID)
		if err != nil {
			return nil, err
		}
		in.logger.Debug("schema loaded", "database", databaseID, "tables", len(tables), "elapsed", time.Since(start))
		if in.cache != nil {
			in.cache.Add(databaseID, tables)
		}
		return tables, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Table), nil
}

// Invalidate drops the cached schema of a database.
func (in *Inspector) Invalidate(databaseID string) {
	if in.cache != nil {
		in.cache.Remove(databaseID)
	}
}

func (in *Inspector) load(ctx context.Context, databaseID string) ([]domain.Table, error) {
	d, err := in.exec.Dialect(databaseID)
	if err != nil {
		return nil, err
	}
	var tables []domain.Table
	switch d.Name() {
	case domain.DatabaseSQLite:
		tables, err = in.loadSQLite(ctx, databaseID, d)
	default:
		q, ok := catalogQueries[d.Name()]
		if !ok {
			return nil, domain.ErrValidation("schema inspection is not supported for %s", d.Name())
		}
		tables, err = in.loadCatalog(ctx, databaseID, q)
	}
	if err != nil {
		return nil, fmt.Errorf("inspect schema of %q: %w", databaseID, err)
	}
	if in.opts.SampleRows > 0 {
		in.sample(ctx, databaseID, d, tables)
	}
	return tables, nil
}

func (in *Inspector) loadCatalog(ctx context.Context, databaseID string, q catalogQuery) ([]domain.Table, error) {
	res, err := in.exec.Query(ctx, databaseID, q.columns)
	if err != nil {
		return nil, err
	}
	var tables []domain.Table
	index := map[string]int{}
	for _, row := range res.Rows {
		name := asString(row[0])
		i, ok := index[name]
		if !ok {
			i = len(tables)
			index[name] = i
			tables = append(tables, domain.Table{Name: name})
		}
		col := domain.Column{
			Name:     asString(row[1]),
			Type:     asString(row[2]),
			Nullable: asString(row[3]) == "YES",
		}
		if row[4] != nil {
			def := asString(row[4])
			col.Default = &def
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}

	pk, err := in.exec.Query(ctx, databaseID, q.primaryKeys)
	if err != nil {
		return nil, err
	}
	for _, row := range pk.Rows {
		if i, ok := index[asString(row[0])]; ok {
			markPrimaryKey(&tables[i], asString(row[1]))
		}
	}

	fk, err := in.exec.Query(ctx, databaseID, q.foreignKeys)
	if err != nil {
		in.logger.Warn("foreign key inspection failed", "database", databaseID, "error", err)
		return tables, nil
	}
	for _, row := range fk.Rows {
		if i, ok := index[asString(row[0])]; ok {
			tables[i].ForeignKeys = append(tables[i].ForeignKeys, domain.ForeignKey{
				Column:    asString(row[1]),
				RefTable:  asString(row[2]),
				RefColumn: asString(row[3]),
				OnDelete:  asString(row[4]),
			})
		}
	}
	return tables, nil
}

func (in *Inspector) loadSQLite(ctx context.Context, databaseID string, d domain.Dialect) ([]domain.Table, error) {
	res, err := in.exec.Query(ctx, databaseID,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	tables := make([]domain.Table, 0, len(res.Rows))
	for _, row := range res.Rows {
		t := domain.Table{Name: asString(row[0])}

		// cid, name, type, notnull, dflt_value, pk
		cols, err := in.exec.Query(ctx, databaseID, "PRAGMA table_info("+d.QuoteIdent(t.Name)+")")
		if err != nil {
			return nil, err
		}
		for _, c := range cols.Rows {
			col := domain.Column{
				Name:       asString(c[1]),
				Type:       asString(c[2]),
				Nullable:   asInt(c[3]) == 0,
				PrimaryKey: asInt(c[5]) > 0,
			}
			if c[4] != nil {
				def := asString(c[4])
				col.Default = &def
			}
			t.Columns = append(t.Columns, col)
		}

		// id, seq, table, from, to, on_update, on_delete, match
		fks, err := in.exec.Query(ctx, databaseID, "PRAGMA foreign_key_list("+d.QuoteIdent(t.Name)+")")
		if err != nil {
			return nil, err
		}
		for _, f := range fks.Rows {
			t.ForeignKeys = append(t.ForeignKeys, domain.ForeignKey{
				Column:    asString(f[3]),
				RefTable:  asString(f[2]),
				RefColumn: asString(f[4]),
				OnDelete:  asString(f[6]),
			})
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// sample attaches up to SampleRows rows to every table. Failures only cost
// the samples.
func (in *Inspector) sample(ctx context.Context, databaseID string, d domain.Dialect, tables []domain.Table) {
	for i := range tables {
		q := "SELECT * FROM " + d.QuoteIdent(tables[i].Name) + " LIMIT " + strconv.Itoa(in.opts.SampleRows)
		res, err := in.exec.Query(ctx, databaseID, q)
		if err != nil {
			in.logger.Debug("sample rows unavailable", "database", databaseID, "table", tables[i].Name, "error", err)
			continue
		}
		tables[i].SampleRows = res.Rows
	}
}

func markPrimaryKey(t *domain.Table, column string) {
	for i := range t.Columns {
		if t.Columns[i].Name == column {
			t.Columns[i].PrimaryKey = true
		}
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		n, _ := strconv.ParseInt(asString(v), 10, 64)
		return n
	}
}

var _ domain.SchemaProvider = (*Inspector)(nil)
