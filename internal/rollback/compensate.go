package rollback

import (
	"context"
	"slices"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

// keyFunc returns the key columns of table among the image columns. A nil
// column list accepts any key.
type keyFunc func(table string, columns []string) ([]string, error)

// builder turns rollback entries into compensating statements.
type builder struct {
	dialect domain.Dialect
	keys    keyFunc
}

func (b *builder) build(en domain.RollbackEntry) ([]domain.Statement, error) {
	img := en.Image
	switch {
	case img == nil:
		return nil, domain.ErrRollbackUnavailable("step %d: no row image was captured", en.StepNumber)
	case img.Unavailable != "":
		return nil, domain.ErrRollbackUnavailable("step %d: %s", en.StepNumber, img.Unavailable)
	case img.Truncated:
		return nil, domain.ErrRollbackUnavailable("step %d: too many rows were affected to restore them", en.StepNumber)
	case img.Table == "":
		return nil, domain.ErrRollbackUnavailable("step %d: target table is unknown", en.StepNumber)
	}

	switch en.Operation {
	case domain.OpDelete:
		return b.reinsert(img), nil
	case domain.OpUpdate:
		return b.restore(en, img)
	case domain.OpInsert:
		return b.unInsert(en.StepNumber, img)
	default:
		return nil, domain.ErrRollbackUnavailable("step %d: %s cannot be rolled back", en.StepNumber, en.Operation)
	}
}

// reinsert re-creates deleted rows.
func (b *builder) reinsert(img *domain.Image) []domain.Statement {
	cols := make([]string, len(img.Columns))
	for i, c := range img.Columns {
		cols[i] = b.dialect.QuoteIdent(c)
	}
	prefix := "INSERT INTO " + img.Table + " (" + strings.Join(cols, ", ") + ") VALUES ("

	out := make([]domain.Statement, 0, len(img.Rows))
	for _, row := range img.Rows {
		ph := make([]string, len(row))
		for i := range row {
			ph[i] = b.dialect.Placeholder(i + 1)
		}
		out = append(out, domain.Statement{SQL: prefix + strings.Join(ph, ", ") + ")", Args: row, Expect: 1})
	}
	return out
}

// restore writes the pre-image values back, keyed by the key columns. An
// UPDATE that assigned a key column cannot be restored this way because the
// captured keys no longer identify the rows.
func (b *builder) restore(en domain.RollbackEntry, img *domain.Image) ([]domain.Statement, error) {
	step := en.StepNumber
	keys, err := b.keys(img.Table, img.Columns)
	if err != nil {
		return nil, err
	}
	target, err := sqlguard.ExtractTarget(en.SQL)
	if err != nil {
		return nil, domain.ErrRollbackUnavailable("step %d: %v", step, err)
	}
	for _, k := range keys {
		for _, c := range target.SetColumns {
			if strings.EqualFold(c, k) {
				return nil, domain.ErrRollbackUnavailable("step %d: the update changed key column %s", step, k)
			}
		}
	}
	isKey := make(map[int]bool, len(keys))
	keyIdx := make([]int, len(keys))
	for i, k := range keys {
		keyIdx[i] = img.Column(k)
		isKey[keyIdx[i]] = true
	}

	out := make([]domain.Statement, 0, len(img.Rows))
	for _, row := range img.Rows {
		var sets []string
		var args []any
		for i, c := range img.Columns {
			if isKey[i] {
				continue
			}
			args = append(args, row[i])
			sets = append(sets, b.dialect.QuoteIdent(c)+" = "+b.dialect.Placeholder(len(args)))
		}
		if len(sets) == 0 {
			continue
		}
		where, wargs, err := b.keyPredicate(step, keys, keyIdx, row, len(args))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Statement{
			SQL:    "UPDATE " + img.Table + " SET " + strings.Join(sets, ", ") + " WHERE " + where,
			Args:   append(args, wargs...),
			Expect: 1,
		})
	}
	return out, nil
}

// unInsert deletes inserted rows, by their keys or by the id range reported
// through the last insert id.
func (b *builder) unInsert(step int, img *domain.Image) ([]domain.Statement, error) {
	if len(img.Rows) == 0 {
		if img.LastInsertID <= 0 || img.InsertCount <= 0 {
			return nil, domain.ErrRollbackUnavailable("step %d: inserted rows cannot be identified", step)
		}
		keys, err := b.keys(img.Table, nil)
		if err != nil {
			return nil, err
		}
		if len(keys) != 1 {
			return nil, domain.ErrRollbackUnavailable("step %d: inserted rows cannot be identified", step)
		}
		col := b.dialect.QuoteIdent(keys[0])
		return []domain.Statement{{
			SQL:  "DELETE FROM " + img.Table + " WHERE " + col + " >= " + b.dialect.Placeholder(1) + " AND " + col + " < " + b.dialect.Placeholder(2),
			Args:   []any{img.LastInsertID, img.LastInsertID + img.InsertCount},
			Expect: img.InsertCount,
		}}, nil
	}

	keys, err := b.keys(img.Table, img.Columns)
	if err != nil {
		return nil, err
	}
	keyIdx := make([]int, len(keys))
	for i, k := range keys {
		keyIdx[i] = img.Column(k)
	}
	out := make([]domain.Statement, 0, len(img.Rows))
	for _, row := range img.Rows {
		where, args, err := b.keyPredicate(step, keys, keyIdx, row, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Statement{SQL: "DELETE FROM " + img.Table + " WHERE " + where, Args: args, Expect: 1})
	}
	return out, nil
}

func (b *builder) keyPredicate(step int, keys []string, keyIdx []int, row []any, offset int) (string, []any, error) {
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		v := row[keyIdx[i]]
		if v == nil {
			return "", nil, domain.ErrRollbackUnavailable("step %d: key column %s is NULL", step, k)
		}
		args[i] = v
		conds[i] = b.dialect.QuoteIdent(k) + " = " + b.dialect.Placeholder(offset+i+1)
	}
	return strings.Join(conds, " AND "), args, nil
}

// keyResolver looks up primary key columns through the schema provider and
// falls back to a column named id.
func (c *Coordinator) keyResolver(ctx context.Context, databaseID string) keyFunc {
	var tables []domain.Table
	loaded := false
	return func(table string, columns []string) ([]string, error) {
		if c.schema != nil && !loaded {
			loaded = true
			var err error
			if tables, err = c.schema.GetSchema(ctx, databaseID); err != nil {
				c.logger.Warn("schema lookup for rollback keys failed", "database", databaseID, "error", err)
			}
		}
		if t, ok := domain.FindTable(tables, bareName(table)); ok {
			if pk := t.PrimaryKey(); len(pk) > 0 && (columns == nil || containsAll(columns, pk)) {
				return pk, nil
			}
		}
		if columns == nil {
			return []string{"id"}, nil
		}
		for _, col := range columns {
			if strings.EqualFold(col, "id") {
				return []string{col}, nil
			}
		}
		return nil, domain.ErrRollbackUnavailable("no key columns known for table %s", table)
	}
}

// bareName strips quoting and schema qualification from a table reference.
func bareName(ref string) string {
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.Trim(ref, "\"`[]")
}

func containsAll(columns, want []string) bool {
	for _, w := range want {
		if !slices.Contains(columns, w) {
			return false
		}
	}
	return true
}
