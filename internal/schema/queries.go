package schema

import "github.com/jmanoj0905/natural-language-sql/internal/domain"

// catalogQuery holds the information_schema reads of one engine. Column
// queries return (table, column, type, nullable, default) ordered by table
// and position; primary key queries (table, column); foreign key queries
// (table, column, ref_table, ref_column, on_delete).
type catalogQuery struct {
	columns     string
	primaryKeys string
	foreignKeys string
}

var catalogQueries = map[domain.DatabaseType]catalogQuery{
	domain.DatabasePostgres: {
		columns: `SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.column_default
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = current_schema() AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`,
		primaryKeys: `SELECT kcu.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema()
ORDER BY kcu.table_name, kcu.ordinal_position`,
		foreignKeys: `SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name, rc.delete_rule
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage kcu
  ON rc.constraint_name = kcu.constraint_name AND rc.constraint_schema = kcu.constraint_schema
JOIN information_schema.constraint_column_usage ccu
  ON rc.unique_constraint_name = ccu.constraint_name AND rc.unique_constraint_schema = ccu.constraint_schema
WHERE kcu.table_schema = current_schema()
ORDER BY kcu.table_name, kcu.ordinal_position`,
	},
	domain.DatabaseMySQL: {
		columns: `SELECT c.TABLE_NAME, c.COLUMN_NAME, c.COLUMN_TYPE, c.IS_NULLABLE, c.COLUMN_DEFAULT
FROM information_schema.COLUMNS c
JOIN information_schema.TABLES t ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
WHERE c.TABLE_SCHEMA = DATABASE() AND t.TABLE_TYPE = 'BASE TABLE'
ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`,
		primaryKeys: `SELECT TABLE_NAME, COLUMN_NAME
FROM information_schema.KEY_COLUMN_USAGE
WHERE TABLE_SCHEMA = DATABASE() AND CONSTRAINT_NAME = 'PRIMARY'
ORDER BY TABLE_NAME, ORDINAL_POSITION`,
		foreignKeys: `SELECT k.TABLE_NAME, k.COLUMN_NAME, k.REFERENCED_TABLE_NAME, k.REFERENCED_COLUMN_NAME, r.DELETE_RULE
FROM information_schema.KEY_COLUMN_USAGE k
JOIN information_schema.REFERENTIAL_CONSTRAINTS r
  ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
WHERE k.TABLE_SCHEMA = DATABASE() AND k.REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY k.TABLE_NAME, k.ORDINAL_POSITION`,
	},
	domain.DatabaseDuckDB: {
		columns: `SELECT c.table_name, c.column_name, c.data_type, c.is_nullable, c.column_default
FROM information_schema.columns c
JOIN information_schema.tables t ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = current_schema() AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`,
		primaryKeys: `SELECT table_name, unnest(constraint_column_names)
FROM duckdb_constraints()
WHERE constraint_type = 'PRIMARY KEY' AND schema_name = current_schema()`,
		foreignKeys: `SELECT table_name, unnest(constraint_column_names), referenced_table, unnest(referenced_column_names), 'NO ACTION'
FROM duckdb_constraints()
WHERE constraint_type = 'FOREIGN KEY' AND schema_name = current_schema()`,
	},
}
