// Package repository persists audit records in the local SQLite store.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

const insertAuditLog = `INSERT INTO audit_log (
	id, operation_type, table_name, record_identifier, pre_image, cascade_impact,
	performer, reason, database_id, sql_text, rows_affected, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// A NULL filter argument disables that predicate.
const auditWhere = `WHERE (?1 IS NULL OR operation_type = ?1)
	AND (?2 IS NULL OR table_name = ?2)
	AND (?3 IS NULL OR database_id = ?3)`

const countAuditLogs = `SELECT COUNT(*) FROM audit_log ` + auditWhere

const listAuditLogs = `SELECT id, operation_type, table_name, record_identifier, pre_image,
	cascade_impact, performer, reason, database_id, sql_text, rows_affected, created_at
FROM audit_log ` + auditWhere + `
ORDER BY created_at DESC, id DESC
LIMIT ?4 OFFSET ?5`

// Fixed-width so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AuditRepo appends to and lists the audit log. Appends go through the single
// writer connection; listings use the reader pool.
type AuditRepo struct {
	write *sql.DB
	read  *sql.DB
	now   func() time.Time
}

// NewAuditRepo creates an AuditRepo. read may be nil, in which case listings
// use the writer.
func NewAuditRepo(write, read *sql.DB) *AuditRepo {
	if read == nil {
		read = write
	}
	return &AuditRepo{write: write, read: read, now: time.Now}
}

var _ domain.AuditRepository = (*AuditRepo)(nil)

// Append stores rec, filling in ID and Timestamp when empty.
func (r *AuditRepo) Append(ctx context.Context, rec *domain.AuditRecord) error {
	if rec.OperationType == "" {
		return domain.ErrValidation("audit record needs an operation type")
	}
	if rec.Performer == "" {
		rec.Performer = domain.DefaultPerformer
	}
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	_, err := r.write.ExecContext(ctx, insertAuditLog,
		rec.ID, rec.OperationType, rec.TableName, rec.RecordIdentifier, rec.PreImage,
		rec.CascadeImpact, rec.Performer, rec.Reason, rec.DatabaseID, rec.SQL,
		rec.RowsAffected, rec.Timestamp.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// List returns one page of records, newest first, and the total match count.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditRecord, int64, error) {
	args := []any{nullable(filter.OperationType), nullable(filter.TableName), nullable(filter.DatabaseID)}

	var total int64
	if err := r.read.QueryRowContext(ctx, countAuditLogs, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.read.QueryContext(ctx, listAuditLogs, append(args, filter.EffectiveLimit(), offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.AuditRecord
	for rows.Next() {
		var (
			rec     domain.AuditRecord
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.OperationType, &rec.TableName, &rec.RecordIdentifier,
			&rec.PreImage, &rec.CascadeImpact, &rec.Performer, &rec.Reason, &rec.DatabaseID,
			&rec.SQL, &rec.RowsAffected, &created); err != nil {
			return nil, 0, fmt.Errorf("scan audit record: %w", err)
		}
		if rec.Timestamp, err = time.Parse(timeLayout, created); err != nil {
			return nil, 0, fmt.Errorf("parse audit timestamp %q: %w", created, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, total, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
