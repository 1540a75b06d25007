package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"duck-ingest/internal/domain"
)

// ListExecutions handles GET /v1/executions with optional mapping (id or
// code), status and limit query parameters.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.ExecutionFilter

	if ref := q.Get("mapping"); ref != "" {
		id, code := domain.ParseMappingRef(ref)
		if code != "" {
			m, err := h.catalog.GetTableMappingByCode(r.Context(), code)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			id = m.ID
		}
		filter.MappingID = &id
	}
	if status := strings.ToUpper(q.Get("status")); status != "" {
		filter.Status = &status
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, domain.ErrValidation("limit must be an integer, got %q", v))
			return
		}
		filter.Limit = n
	}

	execs, err := h.catalog.ListExecutions(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]Execution, 0, len(execs))
	for _, e := range execs {
		out = append(out, ExecutionToAPI(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetExecution handles GET /v1/executions/{id}.
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.catalog.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExecutionToAPI(*exec))
}

// ListViolations handles GET /v1/executions/{id}/violations.
func (h *Handler) ListViolations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.catalog.GetExecution(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	violations, err := h.catalog.ListViolations(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]Violation, 0, len(violations))
	for _, v := range violations {
		out = append(out, ViolationToAPI(v))
	}
	writeJSON(w, http.StatusOK, out)
}
