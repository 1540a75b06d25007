// Package api provides the HTTP surface of the ingestion engine.
package api

import (
	"context"
	"log/slog"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/service/ingestion"
)

// Catalog is the read side of the metadata catalog used by the API.
type Catalog interface {
	domain.ConfigReader
	domain.LineageReader
}

// Runner starts ingestion runs and resolves run plans.
type Runner interface {
	ExecuteMappingByRef(ctx context.Context, ref string) (*ingestion.MappingResult, error)
	ExecuteSourceSystem(ctx context.Context, code string) (*ingestion.RunStats, error)
	PlanSourceSystem(ctx context.Context, code string) (*ingestion.Plan, error)
}

var _ Runner = (*ingestion.Orchestrator)(nil)

// Handler serves the /v1 routes.
type Handler struct {
	catalog Catalog
	runner  Runner
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(catalog Catalog, runner Runner, logger *slog.Logger) *Handler {
	return &Handler{catalog: catalog, runner: runner, logger: logger.With("component", "api")}
}
