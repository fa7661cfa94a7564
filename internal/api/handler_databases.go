package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmanoj0905/natural-language-sql/internal/crypto"
	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

type registerDatabaseRequest struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname"`
	Type       string `json:"type"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Database   string `json:"database"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	SSLMode    string `json:"ssl_mode"`
	Path       string `json:"path"`
	DSN        string `json:"dsn"`
	SetDefault bool   `json:"set_default"`
}

type databaseList struct {
	Databases []domain.DatabaseInfo `json:"databases"`
	Default   string                `json:"default,omitempty"`
}

// ListDatabases handles GET /v1/databases.
func (h *Handler) ListDatabases(w http.ResponseWriter, _ *http.Request) {
	list := databaseList{Databases: h.databases.List()}
	for _, d := range list.Databases {
		if d.IsDefault {
			list.Default = d.ID
		}
	}
	writeJSON(w, http.StatusOK, list)
}

// RegisterDatabase handles POST /v1/databases. A password carrying the
// sealed prefix is decrypted before the connection is opened.
func (h *Handler) RegisterDatabase(w http.ResponseWriter, r *http.Request) {
	var req registerDatabaseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	password := req.Password
	if h.sealer != nil && crypto.IsSealed(password) {
		plain, err := h.sealer.Open(password)
		if err != nil {
			h.fail(w, r, domain.ErrValidation("cannot decrypt password: %v", err))
			return
		}
		password = plain
	}
	cfg := domain.DatabaseConfig{
		ID:       strings.TrimSpace(req.ID),
		Nickname: req.Nickname,
		Type:     domain.DatabaseType(req.Type),
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		Username: req.Username,
		Password: password,
		SSLMode:  req.SSLMode,
		Path:     req.Path,
		DSN:      req.DSN,
	}
	if err := h.databases.Register(r.Context(), cfg); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.SetDefault {
		if err := h.databases.SetDefault(cfg.ID); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.logger.Info("database registered", "database", cfg.ID, "type", cfg.Type)

	for _, d := range h.databases.List() {
		if d.ID == cfg.ID {
			writeJSON(w, http.StatusCreated, d)
			return
		}
	}
	writeJSON(w, http.StatusCreated, domain.DatabaseInfo{ID: cfg.ID, Type: cfg.Type})
}

// UnregisterDatabase handles DELETE /v1/databases/{databaseID}.
func (h *Handler) UnregisterDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "databaseID")
	if err := h.databases.Unregister(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.schema.Invalidate(id)
	h.logger.Info("database unregistered", "database", id)
	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultDatabase handles PUT /v1/databases/{databaseID}/default.
func (h *Handler) SetDefaultDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "databaseID")
	if err := h.databases.SetDefault(id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"default": id})
}

// GetSchema handles GET /v1/databases/{databaseID}/schema. refresh=true
// drops the cached copy first.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "databaseID")
	if r.URL.Query().Get("refresh") == "true" {
		h.schema.Invalidate(id)
	}
	tables, err := h.schema.GetSchema(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"database_id": id, "tables": tables})
}
