package ingestion

import (
	"context"
	"fmt"

	"duck-ingest/internal/domain"
	"duck-ingest/internal/service/dependency"
)

// Plan is the resolved run order of a source system's active mappings.
type Plan struct {
	Source   *domain.SourceSystem
	Mappings map[int64]*domain.TableMapping
	Order    []int64
	Levels   [][]int64
	Warnings []dependency.Warning
}

// Code returns the mapping code of id, or "" when id is not in the plan.
func (p *Plan) Code(id int64) string {
	if m, ok := p.Mappings[id]; ok {
		return m.Code
	}
	return ""
}

// PlanSourceSystem resolves the dependency order of every active mapping of
// the source system without executing anything.
func (o *Orchestrator) PlanSourceSystem(ctx context.Context, code string) (*Plan, error) {
	src, err := o.catalog.GetSourceSystem(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get source system %q: %w", code, err)
	}
	mappings, err := o.catalog.ListTableMappings(ctx, src.ID, true)
	if err != nil {
		return nil, fmt.Errorf("list mappings of %q: %w", code, err)
	}

	plan := &Plan{Source: src, Mappings: make(map[int64]*domain.TableMapping, len(mappings))}
	ids := make([]int64, 0, len(mappings))
	for i := range mappings {
		plan.Mappings[mappings[i].ID] = &mappings[i]
		ids = append(ids, mappings[i].ID)
	}

	plan.Warnings = o.deps.ValidateDependencies(ctx, ids)
	graph, err := o.deps.BuildGraph(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("build dependency graph of %q: %w", code, err)
	}
	if plan.Order, err = graph.ResolveOrder(); err != nil {
		return nil, fmt.Errorf("order mappings of %q: %w", code, err)
	}
	if plan.Levels, err = graph.ExecutionLevels(); err != nil {
		return nil, fmt.Errorf("order mappings of %q: %w", code, err)
	}
	return plan, nil
}
