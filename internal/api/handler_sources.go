package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListSources handles GET /v1/sources.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.catalog.ListSourceSystems(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]SourceSystem, 0, len(sources))
	for _, s := range sources {
		out = append(out, SourceToAPI(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListSourceMappings handles GET /v1/sources/{code}/mappings. Inactive
// mappings are included unless active=true is given.
func (h *Handler) ListSourceMappings(w http.ResponseWriter, r *http.Request) {
	src, err := h.catalog.GetSourceSystem(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	mappings, err := h.catalog.ListTableMappings(r.Context(), src.ID, activeOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]TableMapping, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, MappingToAPI(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSourceOrder handles GET /v1/sources/{code}/order.
func (h *Handler) GetSourceOrder(w http.ResponseWriter, r *http.Request) {
	plan, err := h.runner.PlanSourceSystem(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PlanToAPI(plan))
}
