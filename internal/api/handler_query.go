package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmanoj0905/natural-language-sql/internal/service/query"
)

type askRequest struct {
	Question      string `json:"question"`
	DatabaseID    string `json:"database_id"`
	ReadOnly      *bool  `json:"read_only"`
	Execute       *bool  `json:"execute"`
	IncludeSchema bool   `json:"include_schema"`
}

type directRequest struct {
	SQL        string `json:"sql"`
	DatabaseID string `json:"database_id"`
	ReadOnly   *bool  `json:"read_only"`
	Execute    *bool  `json:"execute"`
}

type executeRequest struct {
	Confirm    []int `json:"confirm"`
	ConfirmAll *bool `json:"confirm_all"`
}

// readOnly defaults to true so an omitted flag never enables writes.
func readOnly(v *bool) bool {
	return v == nil || *v
}

// AskQuestion handles POST /v1/query/natural.
func (h *Handler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.query.Ask(r.Context(), query.AskRequest{
		Question:      req.Question,
		DatabaseID:    req.DatabaseID,
		ReadOnly:      readOnly(req.ReadOnly),
		Execute:       req.Execute,
		IncludeSchema: req.IncludeSchema,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DirectSQL handles POST /v1/query/sql.
func (h *Handler) DirectSQL(w http.ResponseWriter, r *http.Request) {
	var req directRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.query.Direct(r.Context(), query.DirectRequest{
		SQL:        req.SQL,
		DatabaseID: req.DatabaseID,
		ReadOnly:   readOnly(req.ReadOnly),
		Execute:    req.Execute,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPlan handles GET /v1/plans/{planID}.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	resp, err := h.query.GetPlan(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExecutePlan handles POST /v1/plans/{planID}/execute. Without a body every
// awaiting step is confirmed.
func (h *Handler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	opts := query.ExecuteOptions{Confirm: req.Confirm, ConfirmAll: true}
	if req.ConfirmAll != nil {
		opts.ConfirmAll = *req.ConfirmAll
	}
	resp, err := h.query.ExecutePlan(r.Context(), chi.URLParam(r, "planID"), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelPlan handles POST /v1/plans/{planID}/cancel.
func (h *Handler) CancelPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	if err := h.query.Cancel(r.Context(), planID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"plan_id": planID, "status": "cancel_requested"})
}

// fail writes err as JSON and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse(err)
	if resp.Code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, resp.Code, resp)
}
