package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RollbackStatus handles GET /v1/rollback.
func (h *Handler) RollbackStatus(w http.ResponseWriter, r *http.Request) {
	handle, err := h.query.RollbackStatus(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

// Rollback handles POST /v1/rollback/{recordID}.
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.query.Rollback(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// KeepChanges handles DELETE /v1/rollback/{recordID}.
func (h *Handler) KeepChanges(w http.ResponseWriter, r *http.Request) {
	if err := h.query.Keep(r.Context(), chi.URLParam(r, "recordID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RollbackCountdown handles GET /v1/rollback/{recordID}/countdown as a
// server-sent event stream: one "tick" event per remaining second and a final
// "closed" event when the record expires or is resolved.
func (h *Handler) RollbackCountdown(w http.ResponseWriter, r *http.Request) {
	ticks, err := h.query.Countdown(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for n := range ticks {
		if _, err := fmt.Fprintf(w, "event: tick\ndata: %d\n\n", n); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if r.Context().Err() == nil {
		_, _ = fmt.Fprint(w, "event: closed\ndata: 0\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}
