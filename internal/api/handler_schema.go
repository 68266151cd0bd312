package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lakerunner/internal/domain"
)

type registerSchemaRequest struct {
	TableName string         `json:"table_name"`
	Fields    []domain.Field `json:"fields"`
}

type schemaResponse struct {
	TableName   string            `json:"table_name"`
	Version     int               `json:"version"`
	Fields      []domain.Field    `json:"fields"`
	CompiledDDL map[string]string `json:"compiled_ddl"`
	CreatedAt   string            `json:"created_at"`
}

func toSchemaResponse(def *domain.SchemaDefinition) schemaResponse {
	return schemaResponse{
		TableName:   def.TableName,
		Version:     def.Version,
		Fields:      def.Fields,
		CompiledDDL: def.CompiledDDL,
		CreatedAt:   def.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (h *Handler) registerSchema(w http.ResponseWriter, r *http.Request) {
	var req registerSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	def, err := h.schemas.Register(r.Context(), req.TableName, req.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSchemaResponse(def))
}

func (h *Handler) getCurrentSchema(w http.ResponseWriter, r *http.Request) {
	def, err := h.schemas.GetCurrent(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(def))
}

func (h *Handler) getSchemaVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, domain.ErrValidation("version must be a positive integer"))
		return
	}

	def, err := h.schemas.GetVersion(r.Context(), chi.URLParam(r, "table"), version)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(def))
}

func (h *Handler) listSchemaVersions(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	versions, err := h.schemas.ListVersions(r.Context(), table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"table_name": table,
		"versions":   versions,
	})
}
