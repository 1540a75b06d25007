package dependency

import (
	"context"
	"fmt"
	"log/slog"

	"duck-ingest/internal/domain"
)

// Warning describes a declared dependency on a mapping outside the run set.
type Warning struct {
	MappingID int64
	ParentID  int64
	Message   string
}

// Manager builds dependency graphs from the metadata catalog.
type Manager struct {
	catalog domain.ConfigReader
	logger  *slog.Logger
}

// NewManager creates a Manager.
func NewManager(catalog domain.ConfigReader, logger *slog.Logger) *Manager {
	return &Manager{catalog: catalog, logger: logger.With("component", "dependency")}
}

// BuildGraph reads the parent edges and codes of ids and returns the graph
// restricted to ids. Parents outside ids are treated as satisfied.
func (m *Manager) BuildGraph(ctx context.Context, ids []int64) (*Graph, error) {
	var edges []domain.DependencyEdge
	codes := make(map[int64]string, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		deps, err := m.catalog.ListDependencies(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list dependencies of mapping %d: %w", id, err)
		}
		edges = append(edges, deps...)

		mapping, err := m.catalog.GetTableMapping(ctx, id)
		if err != nil {
			m.logger.Debug("mapping code unavailable", "mapping_id", id, "error", err)
			continue
		}
		codes[id] = mapping.Code
	}
	return NewGraph(ids, edges, codes), nil
}

// ResolveOrder builds the graph of ids and returns its topological order.
func (m *Manager) ResolveOrder(ctx context.Context, ids []int64) ([]int64, error) {
	g, err := m.BuildGraph(ctx, ids)
	if err != nil {
		return nil, err
	}
	return g.ResolveOrder()
}

// ExecutionLevels builds the graph of ids and returns its execution levels.
func (m *Manager) ExecutionLevels(ctx context.Context, ids []int64) ([][]int64, error) {
	g, err := m.BuildGraph(ctx, ids)
	if err != nil {
		return nil, err
	}
	return g.ExecutionLevels()
}

// ValidateDependencies reports every declared parent that is not part of
// ids. It never fails: catalog errors are reported as warnings too.
func (m *Manager) ValidateDependencies(ctx context.Context, ids []int64) []Warning {
	inSet := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		inSet[id] = struct{}{}
	}

	var warnings []Warning
	for id := range orderedUnique(ids) {
		deps, err := m.catalog.ListDependencies(ctx, id)
		if err != nil {
			w := Warning{MappingID: id, Message: fmt.Sprintf("mapping %d: cannot read dependencies: %v", id, err)}
			m.logger.Warn(w.Message)
			warnings = append(warnings, w)
			continue
		}
		for _, d := range deps {
			if _, ok := inSet[d.ParentMappingID]; ok {
				continue
			}
			w := Warning{
				MappingID: id,
				ParentID:  d.ParentMappingID,
				Message:   fmt.Sprintf("mapping %d depends on mapping %d which is not part of this run", id, d.ParentMappingID),
			}
			m.logger.Warn("dependency outside run set", "mapping_id", id, "parent_id", d.ParentMappingID)
			warnings = append(warnings, w)
		}
	}
	return warnings
}

// orderedUnique yields ids in order without repeats.
func orderedUnique(ids []int64) func(yield func(int64) bool) {
	return func(yield func(int64) bool) {
		seen := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if !yield(id) {
				return
			}
		}
	}
}
