package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"duck-ingest/internal/domain"
)

// runContext detaches a run from the request so a client disconnect does not
// cancel an ingestion halfway, and records who triggered it.
func runContext(r *http.Request) context.Context {
	by := strings.TrimSpace(r.Header.Get("X-Triggered-By"))
	if by == "" {
		by = "api"
	}
	ctx := context.WithoutCancel(r.Context())
	return domain.WithTrigger(ctx, domain.Trigger{By: by, Type: domain.TriggerTypeManual})
}

// RunSource handles POST /v1/sources/{code}/runs. The run is synchronous;
// mapping failures are reported in the body with 200, configuration and
// cycle errors before any mapping starts map to 4xx.
func (h *Handler) RunSource(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	stats, err := h.runner.ExecuteSourceSystem(runContext(r), code)
	if stats == nil {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		h.logger.Warn("source run interrupted", "source", code, "error", err)
	}
	writeJSON(w, http.StatusOK, SourceRunToAPI(stats, err))
}

// RunMapping handles POST /v1/mappings/{ref}/runs where ref is a mapping id
// or code.
func (h *Handler) RunMapping(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.ExecuteMappingByRef(runContext(r), chi.URLParam(r, "ref"))
	if res == nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MappingRunToAPI(res, err))
}
