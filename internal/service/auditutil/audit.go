// Package auditutil writes audit records on a best-effort basis: a failing
// audit sink is logged and never fails the operation being audited.
package auditutil

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Append stores rec in sink and logs a failure.
func Append(ctx context.Context, sink domain.AuditSink, logger *slog.Logger, rec *domain.AuditRecord) {
	if sink == nil {
		return
	}
	if err := sink.Append(ctx, rec); err != nil {
		logger.Error("audit append failed",
			"operation", rec.OperationType, "table", rec.TableName, "error", err)
	}
}

// RowsJSON renders rows as a JSON array of column-keyed objects. A nil image
// or an image without rows renders as "".
func RowsJSON(columns []string, rows [][]any) string {
	if len(rows) == 0 {
		return ""
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(columns))
		for j, c := range columns {
			if j < len(row) {
				m[c] = row[j]
			}
		}
		out[i] = m
	}
	b, err := json.Marshal(out)
	if err != nil {
		return ""
	}
	return string(b)
}
