package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

type auditRecord struct {
	ID               string    `json:"id"`
	OperationType    string    `json:"operation_type"`
	TableName        string    `json:"table_name,omitempty"`
	RecordIdentifier string    `json:"record_identifier,omitempty"`
	PreImage         string    `json:"pre_image,omitempty"`
	CascadeImpact    string    `json:"cascade_impact,omitempty"`
	Performer        string    `json:"performer"`
	Reason           string    `json:"reason,omitempty"`
	DatabaseID       string    `json:"database_id,omitempty"`
	SQL              string    `json:"sql,omitempty"`
	RowsAffected     int64     `json:"rows_affected"`
	Timestamp        time.Time `json:"timestamp"`
}

type auditPage struct {
	Records []auditRecord `json:"records"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

func auditToAPI(r domain.AuditRecord) auditRecord {
	return auditRecord{
		ID:               r.ID,
		OperationType:    r.OperationType,
		TableName:        r.TableName,
		RecordIdentifier: r.RecordIdentifier,
		PreImage:         r.PreImage,
		CascadeImpact:    r.CascadeImpact,
		Performer:        r.Performer,
		Reason:           r.Reason,
		DatabaseID:       r.DatabaseID,
		SQL:              r.SQL,
		RowsAffected:     r.RowsAffected,
		Timestamp:        r.Timestamp,
	}
}

// ListAudit handles GET /v1/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := domain.AuditFilter{
		OperationType: q.Get("operation_type"),
		TableName:     q.Get("table_name"),
		DatabaseID:    q.Get("database_id"),
		Limit:         limit,
		Offset:        max(offset, 0),
	}
	records, total, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := auditPage{
		Records: make([]auditRecord, 0, len(records)),
		Total:   total,
		Limit:   filter.EffectiveLimit(),
		Offset:  filter.Offset,
	}
	for _, rec := range records {
		page.Records = append(page.Records, auditToAPI(rec))
	}
	writeJSON(w, http.StatusOK, page)
}

type healthResponse struct {
	Status    string                `json:"status"`
	Version   string                `json:"version,omitempty"`
	Oracle    string                `json:"oracle"`
	Databases []domain.HealthStatus `json:"databases"`
}

// Health handles GET /health. It always answers 200; "degraded" means the
// Oracle or some database is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: h.version, Oracle: "unconfigured"}
	if h.oracle != nil {
		if err := h.oracle.Ping(ctx); err != nil {
			resp.Oracle = "unreachable"
			resp.Status = "degraded"
		} else {
			resp.Oracle = "ok"
		}
	}
	resp.Databases = h.databases.HealthCheck(ctx)
	for _, d := range resp.Databases {
		if !d.Healthy {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
